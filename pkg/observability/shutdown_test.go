package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(server *http.Server, timeout time.Duration) *ShutdownManager {
	return NewShutdownManager(NewLogger(ErrorLevel, io.Discard), server, timeout)
}

func TestShutdownManagerDefaultTimeout(t *testing.T) {
	sm := newTestManager(nil, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected 30s default timeout, got %v", sm.shutdownTimeout)
	}

	sm = newTestManager(nil, 10*time.Second)
	if sm.shutdownTimeout != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", sm.shutdownTimeout)
	}
}

// The drain order the service relies on: the listener stops taking requests
// before the janitor schedule, the conversion pools and the icon watcher are
// released.
func TestDrainStopsListenerBeforeHooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var janitorStopped, poolDrained, watcherClosed atomic.Bool

	sm := newTestManager(server.Config, 5*time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error {
		// By hook time the listener must already refuse connections.
		if _, err := http.Get(server.URL); err == nil {
			t.Error("Listener still accepting requests while hooks run")
		}
		janitorStopped.Store(true)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		// A pool drain waits for in-flight conversions up to the deadline.
		select {
		case <-time.After(10 * time.Millisecond):
			poolDrained.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		watcherClosed.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.drain(ctx); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}

	if !janitorStopped.Load() || !poolDrained.Load() || !watcherClosed.Load() {
		t.Error("Not every hook ran")
	}
}

func TestDrainRunsHooksInParallel(t *testing.T) {
	sm := newTestManager(nil, 5*time.Second)
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := sm.drain(ctx); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}

	// Sequential execution would take ~300ms.
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Hooks did not run in parallel: drain took %v", elapsed)
	}
}

func TestDrainDeadline(t *testing.T) {
	sm := newTestManager(nil, 0)

	// A pool drain that never finishes: a conversion is wedged.
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sm.drain(ctx)
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if err.Error() != "shutdown timeout reached" {
		t.Errorf("Expected 'shutdown timeout reached', got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("drain did not respect the deadline: %v", elapsed)
	}
}

func TestDrainCollectsHookErrors(t *testing.T) {
	sm := newTestManager(nil, 5*time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(context.Context) error {
		return errors.New("plugin unload failed")
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return errors.New("trace exporter flush failed")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sm.drain(ctx)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if err.Error() != "shutdown completed with 2 errors" {
		t.Errorf("Expected 'shutdown completed with 2 errors', got %v", err)
	}
}

func TestDrainSkipsNilHooks(t *testing.T) {
	sm := newTestManager(nil, 5*time.Second)
	sm.RegisterShutdownFunc(nil)

	called := false
	sm.RegisterShutdownFunc(func(context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.drain(ctx); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if !called {
		t.Error("Non-nil hook did not run")
	}
}

func TestDrainWithoutServerOrHooks(t *testing.T) {
	sm := newTestManager(nil, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.drain(ctx); err != nil {
		t.Errorf("drain returned error: %v", err)
	}
}

func TestDrainHooksSeeTheDeadline(t *testing.T) {
	sm := newTestManager(nil, 2*time.Second)

	var hasDeadline bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sm.drain(ctx); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if !hasDeadline {
		t.Error("Hook context carried no deadline")
	}
}

func TestRegisterShutdownFuncConcurrent(t *testing.T) {
	sm := newTestManager(nil, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc(func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if len(sm.shutdownFuncs) != 20 {
		t.Errorf("Expected 20 hooks, got %d", len(sm.shutdownFuncs))
	}
}
