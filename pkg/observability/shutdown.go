package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one subsystem during shutdown: the janitor schedule,
// a worker pool drain, the icon watcher, plugin unloads, the OTel exporters.
// The context carries the shared shutdown deadline.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the service on SIGINT/SIGTERM. The HTTP listener
// stops accepting requests first so no new conversions arrive, then every
// registered hook runs in parallel under a single deadline.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownFuncs   []ShutdownFunc
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// NewShutdownManager creates a shutdown manager. A zero timeout defaults to
// 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownFuncs:   make([]ShutdownFunc, 0),
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc adds a hook to run during shutdown. Safe for
// concurrent use.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives, then drains the
// service under the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	return sm.drain(ctx)
}

// drain stops the listener, then runs the hooks concurrently. A hook that
// outlives ctx is abandoned; its subsystem is expected to honor the context
// deadline itself.
func (sm *ShutdownManager) drain(ctx context.Context) error {
	if sm.server != nil {
		sm.logger.Info("Stopping HTTP listener")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP listener shutdown failed")
			return fmt.Errorf("stop HTTP listener: %w", err)
		}
	}

	sm.mu.Lock()
	funcs := sm.shutdownFuncs
	sm.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(funcs))

	for _, fn := range funcs {
		if fn == nil {
			continue
		}
		wg.Add(1)
		go func(hook ShutdownFunc) {
			defer wg.Done()
			if err := hook(ctx); err != nil {
				sm.logger.WithError(err).Error("Shutdown hook failed")
				errCh <- err
			}
		}(fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown deadline reached before all hooks finished")
		return fmt.Errorf("shutdown timeout reached")
	}

	close(errCh)
	failed := 0
	for range errCh {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
