package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the full stack trace.
// Call it in a defer at the top of background goroutines and scheduled
// callbacks, where a panic would otherwise take the whole process down:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "icon watcher")
//	    // ... code that might panic
//	}()
//
// After logging, the panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
