package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic in a defer statement and logs it at
// Error level with the full stack trace. The panic is not re-raised; use
// this in background goroutines where a crash would take down the whole
// process.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("panic recovered")
	}
}
