// Package icons provides the fallback artwork served when a preview cannot
// be generated: a tree of dimension-named directories holding one PNG per
// file extension plus a default.
//
// Layout under the configured root:
//
//	128/pdf.png
//	128/default.png
//	512/pdf.png
//	...
//
// The best-fitting dimension for a request is the smallest one at least as
// large as the requested size, falling back to the largest available.
package icons

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
)

// DefaultName is the extension key of the catch-all icon, also used when a
// request fails before the input's extension is known.
const DefaultName = "default"

const (
	cacheSize = 1000
	cacheTTL  = time.Hour
)

// Icons resolves fallback icon files by extension and requested size.
// Lookups are cached; the cache and the dimension index are invalidated when
// the icon tree changes on disk.
type Icons struct {
	root     string
	redirect string
	resize   bool

	mu   sync.RWMutex
	dims []int

	cache   *lru.LRU[string, string]
	watcher *fsnotify.Watcher
	done    chan struct{}

	metrics *observability.Metrics
	logger  *observability.Logger
}

// New builds the icon index for cfg.Root. A missing or empty root yields a
// disabled instance whose Resolve always misses.
func New(cfg config.IconsConfig, metrics *observability.Metrics, logger *observability.Logger) *Icons {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}

	ic := &Icons{
		root:     cfg.Root,
		redirect: cfg.Redirect,
		resize:   cfg.Resize,
		cache:    lru.NewLRU[string, string](cacheSize, nil, cacheTTL),
		done:     make(chan struct{}),
		metrics:  metrics,
		logger:   logger,
	}
	if !ic.Enabled() {
		return ic
	}

	ic.reindex()
	ic.watch()
	return ic
}

// Enabled reports whether an icon root is configured.
func (ic *Icons) Enabled() bool { return ic.root != "" }

// ResizeRequested reports whether resolved icons should be re-rendered to
// the requested dimensions instead of served as-is.
func (ic *Icons) ResizeRequested() bool { return ic.resize }

// RedirectURL returns the external URL to redirect to for the given
// extension and size, or "" when redirect mode is off or no icon fits.
func (ic *Icons) RedirectURL(extension string, width, height int) string {
	if ic.redirect == "" {
		return ""
	}
	path, ok := ic.Resolve(extension, width, height)
	if !ok {
		return ""
	}
	rel, err := filepath.Rel(ic.root, path)
	if err != nil {
		return ""
	}
	return ic.redirect + "/" + filepath.ToSlash(rel)
}

// Resolve returns the icon file for the extension at the best-fitting
// dimension, trying the extension's own icon first and the default icon
// second. Successful resolutions count as served fallbacks.
func (ic *Icons) Resolve(extension string, width, height int) (string, bool) {
	if !ic.Enabled() {
		return "", false
	}

	dim := ic.bestDim(width, height)
	if dim == 0 {
		return "", false
	}

	cacheKey := extension + "|" + strconv.Itoa(dim)
	if path, ok := ic.cache.Get(cacheKey); ok {
		ic.countFallback(extension)
		return path, true
	}

	for _, name := range []string{extension, DefaultName} {
		path := filepath.Join(ic.root, strconv.Itoa(dim), name+".png")
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			ic.cache.Add(cacheKey, path)
			ic.countFallback(extension)
			return path, true
		}
	}
	return "", false
}

// Close stops the filesystem watcher.
func (ic *Icons) Close() {
	close(ic.done)
	if ic.watcher != nil {
		ic.watcher.Close()
	}
}

func (ic *Icons) countFallback(extension string) {
	if ic.metrics != nil {
		ic.metrics.IconFallbacksTotal.WithLabelValues(extension).Inc()
	}
}

// bestDim picks the smallest dimension covering max(width, height), or the
// largest available when none does. Zero means no dimensions exist.
func (ic *Icons) bestDim(width, height int) int {
	want := width
	if height > want {
		want = height
	}

	ic.mu.RLock()
	defer ic.mu.RUnlock()

	for _, d := range ic.dims {
		if d >= want {
			return d
		}
	}
	if len(ic.dims) > 0 {
		return ic.dims[len(ic.dims)-1]
	}
	return 0
}

// reindex re-reads the integer-named directories under the root.
func (ic *Icons) reindex() {
	entries, err := os.ReadDir(ic.root)
	if err != nil {
		ic.logger.WithError(err).Warnf("icon root unreadable: %s", ic.root)
		entries = nil
	}

	dims := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if d, err := strconv.Atoi(e.Name()); err == nil && d > 0 {
			dims = append(dims, d)
		}
	}
	sort.Ints(dims)

	ic.mu.Lock()
	ic.dims = dims
	ic.mu.Unlock()
	ic.cache.Purge()
}

// watch rebuilds the index when the icon tree changes. Watch setup failure
// is non-fatal; the index is then fixed at startup state.
func (ic *Icons) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		ic.logger.WithError(err).Warn("icon watcher unavailable")
		return
	}
	if err := watcher.Add(ic.root); err != nil {
		ic.logger.WithError(err).Warnf("cannot watch icon root: %s", ic.root)
		watcher.Close()
		return
	}
	ic.watcher = watcher

	go func() {
		defer observability.RecoverPanic(ic.logger, "icon watcher")
		for {
			select {
			case <-ic.done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				ic.reindex()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ic.logger.WithError(fmt.Errorf("icon watcher: %w", err)).Warn("icon watch error")
			}
		}
	}()
}
