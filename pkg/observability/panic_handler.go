package observability

import (
	"fmt"
	"runtime/debug"
)

// LogPanic logs a recovered panic value with the current stack. where names
// the request or task that panicked.
func LogPanic(logger *Logger, where string, recovered interface{}) {
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(recovered),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("PANIC recovered")
}
