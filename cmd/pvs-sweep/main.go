// pvs-sweep runs the preview store janitor without the HTTP service: one
// sweep for cron-driven deployments, or a built-in schedule loop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/store"
)

var (
	storePath = flag.String("store", os.Getenv("PVS_STORE"), "Preview store directory")
	maxSize   = flag.String("max-size", os.Getenv("PVS_CLEANUP_MAX_SIZE"), "Evict least recently used entries above this total size (e.g. 10g)")
	maxAge    = flag.String("max-age", os.Getenv("PVS_CLEANUP_MAX_AGE"), "Evict entries unused for longer than this (e.g. 30m)")
	interval  = flag.String("interval", "", "Sweep on this interval instead of exiting after one pass (e.g. 60s)")
	logLevel  = flag.String("log-level", "info", "Log level (debug, info, warning, error)")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(parseLevel(*logLevel), os.Stdout)

	if *storePath == "" {
		log.Fatal("No store directory given (flag -store or PVS_STORE)")
	}

	size, err := config.Bytesize(*maxSize)
	if err != nil {
		log.Fatalf("Invalid -max-size: %v", err)
	}
	age, err := config.Interval(*maxAge)
	if err != nil {
		log.Fatalf("Invalid -max-age: %v", err)
	}

	st := store.New(*storePath, nil, logger)
	janitor := store.NewJanitor(st, 0, size, age, nil, logger)

	if *interval == "" {
		stats, err := janitor.Sweep(context.Background())
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		logger.WithFields(map[string]interface{}{
			"files":   stats.Files,
			"bytes":   stats.Bytes,
			"evicted": stats.Evicted,
		}).Info("sweep complete")
		return
	}

	every, err := config.Interval(*interval)
	if err != nil || every <= 0 {
		log.Fatalf("Invalid -interval: %s", *interval)
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+every.String(), func() {
		stats, err := janitor.Sweep(context.Background())
		if err != nil {
			logger.WithError(err).Warn("sweep failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"files":   stats.Files,
			"bytes":   stats.Bytes,
			"evicted": stats.Evicted,
		}).Info("sweep complete")
	}); err != nil {
		log.Fatalf("Failed to schedule sweeps: %v", err)
	}
	c.Start()
	logger.WithField("interval", every.String()).Info("store sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	<-c.Stop().Done()
	logger.Info("store sweeper stopped")
}

func parseLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}
