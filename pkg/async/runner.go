package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// ErrRunnerClosed is returned by Go once the runner has started draining.
var ErrRunnerClosed = errors.New("background runner closed")

// Runner owns tasks that must outlive the request that scheduled them,
// such as blob cleanup after a delete commits. Tasks are detached from the
// request's cancellation but keep its values (request id, user id) for
// logging. Drain waits for in-flight tasks during shutdown.
type Runner struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner whose tasks each get the given timeout.
// metrics may be nil.
func NewRunner(logger *observability.Logger, metrics *observability.Metrics, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Runner{logger: logger, metrics: metrics, timeout: timeout}
}

// Go schedules fn. It never blocks on the task itself.
func (r *Runner) Go(ctx context.Context, taskName string, fn func(context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.WithField("task", taskName).Warn("background task rejected during shutdown")
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.BackgroundTasksRunning.Inc()
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		err := run(detached, observability.FromContextOr(detached, r.logger), r.timeout, taskName, fn)
		if r.metrics != nil {
			r.metrics.BackgroundTasksRunning.Dec()
			result := "ok"
			if err != nil {
				result = "error"
			}
			r.metrics.BackgroundTasksTotal.WithLabelValues(taskName, result).Inc()
		}
	}()
	return nil
}

// Drain stops accepting tasks and waits for in-flight ones until ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
