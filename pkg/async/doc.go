// Package async provides the bounded worker pool conversions run on.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// optional per-task timeouts, context cancellation, and error collection.
//
// # WorkerPool
//
// A managed pool of concurrent workers:
//
//	pool := async.NewWorkerPool(ctx, 40, "preview conversion", 5*time.Minute)
//	defer pool.Shutdown(5 * time.Second)
//
//	err := pool.Do(ctx, func(ctx context.Context) error {
//		return renderPreview(ctx, req)
//	})
//
// Do blocks until a worker picks the task up and returns the task's own
// error, so a request handler waits for its pool slot cooperatively. Submit
// enqueues fire-and-forget work whose errors drain through Errors.
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts (zero means no deadline)
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Related Packages
//
//   - pkg/coordinator: Uses Do to bound concurrent conversions
package async
