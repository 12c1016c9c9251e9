package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pvs/pkg/api"
	"github.com/platinummonkey/pvs/pkg/async"
	"github.com/platinummonkey/pvs/pkg/backend"
	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/coordinator"
	"github.com/platinummonkey/pvs/pkg/icons"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/plugins"
	"github.com/platinummonkey/pvs/pkg/source"
	"github.com/platinummonkey/pvs/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		// Tracing is an add-on; the service runs without it.
		logger.WithError(err).Warn("OpenTelemetry initialization failed")
	}

	src := source.New(cfg.Source.FileRoot, cfg.Source.MaxFileSize, metrics, logger)

	st := store.New(cfg.Store.BasePath, metrics, logger)
	janitor := store.NewJanitor(st, cfg.Store.CleanupInterval, cfg.Store.CleanupMaxSize,
		cfg.Store.CleanupMaxAge, metrics, logger)
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start store janitor: %v", err)
	}

	img := backend.NewImageBackend(cfg.Engines, metrics, logger)
	pdf := backend.NewPDFBackend(cfg.Engines, img, metrics, logger)
	office := backend.NewOfficeBackend(cfg.Office, pdf, metrics, logger)
	video := backend.NewVideoBackend(cfg.Engines, cfg.Preview.FilmOverlay, img, metrics, logger)
	registry := backend.NewRegistry(office, img, video, pdf)

	pool := async.NewWorkerPool(ctx, cfg.Preview.MaxWorkers, "preview conversion", cfg.Preview.Timeout)
	var officePool *async.WorkerPool
	if cfg.Office.MaxWorkers > 0 {
		officePool = async.NewWorkerPool(ctx, cfg.Office.MaxWorkers, "office conversion", cfg.Preview.Timeout)
	}

	ic := icons.New(cfg.Icons, metrics, logger)

	coord := coordinator.New(registry, st, ic, pool, officePool, metrics, logger)

	health := observability.NewHealthChecker(
		cfg.Source.FileRoot,
		cfg.Store.BasePath,
		cfg.Office.Endpoint(),
		[]string{cfg.Engines.Magick, cfg.Engines.Ghostscript, cfg.Engines.FFmpeg, cfg.Engines.FFprobe},
		nil,
	)

	server := api.NewServer(cfg, src, coord, registry, health, promReg, metrics, logger)

	discovered := loadPlugins(ctx, cfg, server)

	handler := server.Handler()
	if providers != nil && providers.Metrics != nil {
		handler = providers.Metrics.Middleware()(handler)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(context.Context) error {
		janitor.Stop()
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return pool.Shutdown(cfg.Server.ShutdownTimeout)
	})
	if officePool != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return officePool.Shutdown(cfg.Server.ShutdownTimeout)
		})
	}
	sm.RegisterShutdownFunc(func(context.Context) error {
		ic.Close()
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		for _, p := range discovered {
			if err := p.Unload(); err != nil {
				logger.WithError(err).Warnf("plugin %s unload failed", p.Manifest().Name)
			}
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return observability.ShutdownOTel(shutdownCtx, providers, logger)
	})

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("preview service listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// loadPlugins discovers path plugins, registers them and mounts their
// routes. A broken plugin is skipped; it never takes the service down.
func loadPlugins(ctx context.Context, cfg *config.Config, server *api.Server) []plugins.Plugin {
	if len(cfg.Plugins.Dirs) == 0 {
		return nil
	}

	loaderLog := logrus.New()
	loader := plugins.NewLoader(cfg.Plugins.Dirs, cfg.Plugins.ProxyCacheURL, loaderLog)

	discovered, err := loader.DiscoverPlugins(ctx)
	if err != nil {
		loaderLog.Warnf("Plugin discovery failed: %v", err)
		return nil
	}

	mounted := make([]plugins.Plugin, 0, len(discovered))
	for _, p := range discovered {
		if err := plugins.Register(p); err != nil {
			loaderLog.WithField("plugin", p.Manifest().Name).Warnf("Plugin registration failed: %v", err)
			continue
		}
		server.MountPlugin(p)
		mounted = append(mounted, p)
	}
	return mounted
}
