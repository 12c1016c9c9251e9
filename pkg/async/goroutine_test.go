package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Basic(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 1*time.Second)
	defer pool.Shutdown(1 * time.Second)

	executed := atomic.Int32{}
	for i := 0; i < 10; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			executed.Add(1)
			return nil
		})
		if err != nil {
			t.Errorf("Failed to submit task: %v", err)
		}
	}

	// Wait for tasks to complete
	time.Sleep(200 * time.Millisecond)

	if executed.Load() != 10 {
		t.Errorf("Expected 10 executions, got %d", executed.Load())
	}
}

func TestWorkerPool_WithErrors(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 1*time.Second)
	defer pool.Shutdown(1 * time.Second)

	// Submit tasks that return errors
	for i := 0; i < 5; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			return errors.New("test error")
		})
		if err != nil {
			t.Errorf("Failed to submit task: %v", err)
		}
	}

	// Wait for tasks to complete
	time.Sleep(200 * time.Millisecond)

	// Check errors channel
	errorCount := 0
	for {
		select {
		case <-pool.Errors():
			errorCount++
		default:
			goto done
		}
	}
done:

	if errorCount != 5 {
		t.Errorf("Expected 5 errors, got %d", errorCount)
	}
}

func TestWorkerPool_Shutdown(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 1*time.Second)

	executed := atomic.Int32{}
	for i := 0; i < 5; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			executed.Add(1)
			return nil
		})
		if err != nil {
			t.Errorf("Failed to submit task: %v", err)
		}
	}

	// Shutdown and wait
	err := pool.Shutdown(1 * time.Second)
	if err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	// All tasks should have completed
	if executed.Load() != 5 {
		t.Errorf("Expected 5 executions, got %d", executed.Load())
	}

	// Submitting after shutdown should fail
	err = pool.Submit(func(ctx context.Context) error {
		return nil
	})
	if err == nil {
		t.Error("Expected error when submitting after shutdown")
	}
}

func TestWorkerPool_Timeout(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 1, "test pool", 50*time.Millisecond)
	defer pool.Shutdown(1 * time.Second)

	timedOut := atomic.Bool{}
	err := pool.Submit(func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			timedOut.Store(true)
			return ctx.Err()
		}
	})
	if err != nil {
		t.Errorf("Failed to submit task: %v", err)
	}

	// Wait for timeout
	time.Sleep(150 * time.Millisecond)

	if !timedOut.Load() {
		t.Error("Task should have timed out")
	}
}

func TestWorkerPool_Do(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 1*time.Second)
	defer pool.Shutdown(1 * time.Second)

	executed := atomic.Bool{}
	err := pool.Do(ctx, func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})
	if err != nil {
		t.Errorf("Do returned unexpected error: %v", err)
	}
	if !executed.Load() {
		t.Error("Do returned before the task executed")
	}
}

func TestWorkerPool_Do_ReturnsTaskError(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 1*time.Second)
	defer pool.Shutdown(1 * time.Second)

	wantErr := errors.New("conversion failed")
	err := pool.Do(ctx, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected task error, got %v", err)
	}

	// The error is delivered to the caller, not the pool channel
	select {
	case err := <-pool.Errors():
		t.Errorf("Task error leaked to pool error channel: %v", err)
	default:
	}
}

func TestWorkerPool_Do_CallerCancellation(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 1, "test pool", 5*time.Second)
	defer pool.Shutdown(1 * time.Second)

	callerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- pool.Do(callerCtx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Do did not return after caller cancellation")
	}
}

func TestWorkerPool_Do_PanicRecovered(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 1, "test pool", 1*time.Second)
	defer pool.Shutdown(1 * time.Second)

	err := pool.Do(ctx, func(ctx context.Context) error {
		panic("conversion panic")
	})
	if err == nil {
		t.Fatal("Expected error from panicking task")
	}
}

func TestWorkerPool_Do_BoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 2, "test pool", 5*time.Second)
	defer pool.Shutdown(1 * time.Second)

	inFlight := atomic.Int32{}
	violated := atomic.Bool{}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(ctx, func(ctx context.Context) error {
				if inFlight.Add(1) > 2 {
					violated.Store(true)
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if violated.Load() {
		t.Error("More tasks in flight than workers")
	}
}

func TestWorkerPool_Do_AfterShutdown(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(ctx, 1, "test pool", 1*time.Second)

	if err := pool.Shutdown(1 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	err := pool.Do(ctx, func(ctx context.Context) error {
		return nil
	})
	if err == nil {
		t.Error("Expected error when calling Do after shutdown")
	}
}

func TestWorkerPool_Do_NoTaskDeadline(t *testing.T) {
	// A zero timeout means no per-task deadline; the task context must be
	// live, not expired on arrival.
	pool := NewWorkerPool(context.Background(), 2, "preview conversion", 0)
	defer pool.Shutdown(1 * time.Second)

	err := pool.Do(context.Background(), func(ctx context.Context) error {
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Do with zero timeout returned error: %v", err)
	}
}

func TestWorkerPool_Submit_NoTaskDeadline(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "preview conversion", 0)
	defer pool.Shutdown(1 * time.Second)

	done := make(chan error, 1)
	if err := pool.Submit(func(ctx context.Context) error {
		done <- ctx.Err()
		return nil
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Worker handed the task an expired context: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Task did not run")
	}
}

func TestWorkerPool_Do_NoTaskDeadline_CallerCancel(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "preview conversion", 0)
	defer pool.Shutdown(1 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	var taskErr error
	doneCh := make(chan struct{})
	go func() {
		taskErr = pool.Do(ctx, func(taskCtx context.Context) error {
			close(started)
			<-taskCtx.Done()
			return taskCtx.Err()
		})
		close(doneCh)
	}()

	<-started
	cancel()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after caller cancellation")
	}
	if !errors.Is(taskErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", taskErr)
	}
}
