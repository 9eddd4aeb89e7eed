package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tasks runs best-effort side effects off the request path. Failures are
// logged and never reported to the caller.
type Tasks struct {
	wg      sync.WaitGroup
	log     *slog.Logger
	timeout time.Duration
}

func NewTasks(logger *slog.Logger, timeout time.Duration) *Tasks {
	return &Tasks{log: logger, timeout: timeout}
}

// Go detaches fn from the cancellation of ctx so it survives the end of the
// request, but bounds it by the task timeout.
func (t *Tasks) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		if err := fn(taskCtx); err != nil {
			t.log.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every started task has returned.
func (t *Tasks) Wait() {
	t.wg.Wait()
}
