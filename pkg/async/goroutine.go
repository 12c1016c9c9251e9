package async

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 40, "preview conversion", 5*time.Minute)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return renderPreview(ctx, req)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10), // Larger buffer to avoid drops
		ctx:      ctx,
		cancel:   cancel,
	}

	// Start workers and wait for them to finish in background
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// taskContext derives the per-task context. A timeout of zero means no
// per-task deadline; the task is then bounded only by the parent context.
func (p *WorkerPool) taskContext(parent context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, p.timeout)
}

// Submit adds a task to the worker pool.
// Returns error if pool is shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	// Check if already shut down
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Try to submit work
	defer func() {
		if r := recover(); r != nil {
			// Recovered from panic (likely closed channel)
			// This happens if shutdown was called between the check above and the send below
		}
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Do submits a task and blocks until it finishes, returning the task's result.
// The pool bounds concurrency while callers wait for their own task; fn runs
// with a context derived from ctx so cancellation and deadlines flow through.
//
// Request handlers run conversions through Do: a slot is acquired when a
// worker is free, and the handler sees the conversion error directly instead
// of through the pool's error channel.
func (p *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	resCh := make(chan error, 1)

	err := p.Submit(func(context.Context) error {
		taskCtx, cancel := p.taskContext(ctx)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				resCh <- fmt.Errorf("panic: %v", r)
			}
		}()

		resCh <- fn(taskCtx)
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-resCh:
		return err
	case <-ctx.Done():
		// The task keeps its slot until it observes cancellation itself;
		// resCh is buffered so the late send never blocks a worker.
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
// Waits up to timeout for workers to finish current tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	// Ensure shutdown only happens once
	p.shutdownOnce.Do(func() {
		// Close work channel so workers can drain remaining tasks
		// Recover from panic if channel already closed
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Channel already closed, continue with shutdown
				}
			}()
			close(p.workCh)
		}()

		// Wait for workers to finish with timeout
		select {
		case <-p.doneCh:
			p.cancel() // Cancel context after workers are done
		case <-time.After(timeout):
			p.cancel() // Force cancel on timeout
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		// Recover from panics first
		if r := recover(); r != nil {
			log.Printf("[WorkerPool] PANIC in worker %d (%s): %v\nStack trace:\n%s",
				id, p.taskName, r, string(debug.Stack()))
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			// Create context with timeout for this task
			ctx, cancel := p.taskContext(p.ctx)

			// Execute task with panic recovery
			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						err := fmt.Errorf("panic: %v", r)
						select {
						case p.errCh <- err:
						default:
							log.Printf("[WorkerPool] Error channel full, dropping error: %v", err)
						}
					}
				}()

				if err := fn(ctx); err != nil {
					select {
					case p.errCh <- err:
					default:
						log.Printf("[WorkerPool] Error channel full, dropping error: %v", err)
					}
				}
			}()
		}
	}
}
