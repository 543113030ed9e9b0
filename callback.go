package spjobs

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
)

// invokeSafe runs fn, recovering and logging any panic.
//
// The log entry carries a correlation ID and the full stack trace.
func invokeSafe(logger *slog.Logger, what, subject string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(what+" panicked",
				"correlation_id", uuid.NewString(),
				"subject", subject,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
