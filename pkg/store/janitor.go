package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/pvs/pkg/observability"
)

// maxRemovalsPerSweep bounds how many entries a single size-eviction pass
// removes, so an oversized store is drained gradually instead of stalling a
// sweep for minutes.
const maxRemovalsPerSweep = 100

// Janitor periodically walks the store tree, publishes its totals and
// evicts entries by atime when the tree exceeds the configured size or age
// bounds.
type Janitor struct {
	store    *Store
	interval time.Duration
	maxSize  int64
	maxAge   time.Duration

	cron    *cron.Cron
	metrics *observability.Metrics
	logger  *observability.Logger
}

// SweepStats summarizes one janitor pass.
type SweepStats struct {
	Files   int
	Bytes   int64
	Evicted int
}

type entry struct {
	path  string
	size  int64
	atime time.Time
}

// NewJanitor builds a janitor for the given store. maxSize and maxAge of
// zero disable the respective eviction.
func NewJanitor(s *Store, interval time.Duration, maxSize int64, maxAge time.Duration,
	metrics *observability.Metrics, logger *observability.Logger) *Janitor {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Janitor{
		store:    s,
		interval: interval,
		maxSize:  maxSize,
		maxAge:   maxAge,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start schedules sweeps on the configured interval.
func (j *Janitor) Start() error {
	if !j.store.Enabled() {
		return nil
	}

	j.cron = cron.New()
	spec := fmt.Sprintf("@every %s", j.interval)
	_, err := j.cron.AddFunc(spec, func() {
		defer observability.RecoverPanic(j.logger, "store sweep")
		if _, err := j.Sweep(context.Background()); err != nil {
			j.logger.WithError(err).Warn("store sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep performs one pass: walk, report totals, evict. Files vanishing
// mid-walk are expected; a concurrent Get may purge a stale entry while the
// sweep holds its path.
func (j *Janitor) Sweep(ctx context.Context) (SweepStats, error) {
	var (
		stats   SweepStats
		entries []entry
	)

	err := filepath.WalkDir(j.store.Base(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		stats.Files++
		stats.Bytes += fi.Size()
		entries = append(entries, entry{path: path, size: fi.Size(), atime: atime(fi)})
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk store: %w", err)
	}

	if j.metrics != nil {
		j.metrics.StoreFiles.Set(float64(stats.Files))
		j.metrics.StoreBytes.Set(float64(stats.Bytes))
	}

	stats.Evicted = j.evict(entries, stats.Bytes)
	if stats.Evicted > 0 {
		j.logger.Debugf("sweep evicted %d of %d entries", stats.Evicted, stats.Files)
	}
	return stats, nil
}

// evict removes least-recently-accessed entries until the tree fits
// maxSize, then removes anything older than maxAge outright.
func (j *Janitor) evict(entries []entry, total int64) int {
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].atime.Before(entries[b].atime)
	})

	evicted := 0
	if j.maxSize > 0 && total > j.maxSize {
		for _, e := range entries {
			if total <= j.maxSize || evicted >= maxRemovalsPerSweep {
				break
			}
			if j.remove(e.path) {
				total -= e.size
				evicted++
			}
		}
	}

	if j.maxAge > 0 {
		cutoff := time.Now().Add(-j.maxAge)
		for _, e := range entries {
			if e.atime.After(cutoff) {
				// Sorted by atime, everything after this is newer.
				break
			}
			if j.remove(e.path) {
				evicted++
			}
		}
	}

	return evicted
}

func (j *Janitor) remove(path string) bool {
	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		j.logger.WithError(err).Warnf("could not evict %s", path)
		return false
	}
	if j.metrics != nil {
		j.metrics.StoreOperationsTotal.WithLabelValues("del").Inc()
	}
	return true
}
