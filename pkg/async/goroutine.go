package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(r.Context(), logger, 5*time.Second, "welcome email", func(ctx context.Context) error {
//	    return mailer.Send(ctx, msg)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		_ = run(parentCtx, logger, timeout, taskName, fn)
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Long-running loops pass a zero timeout and stop when parentCtx is done.
func SafeGoNoError(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// run executes fn synchronously with a timeout and panic recovery, logging
// any failure. A timeout <= 0 leaves the deadline to parentCtx. It returns
// the task error, or an error describing the panic.
func run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}
	defer cancel()

	log := logger.WithField("task", taskName)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).
				WithField("stack", string(debug.Stack())).
				Error("background task panicked")
			err = fmt.Errorf("panic in %s: %v", taskName, r)
		}
	}()

	if err = fn(ctx); err != nil {
		log.WithError(err).Error("background task failed")
	}
	return err
}
