package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const DefaultTaskTimeout = 30 * time.Second

var ErrRunnerClosed = errors.New("task runner closed")

// TaskRunner runs best-effort work after a request returns. Tasks keep the caller's
// values but not its cancellation, are bounded by a timeout and only logged on failure.
type TaskRunner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewTaskRunner(log *slog.Logger, timeout time.Duration) *TaskRunner {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &TaskRunner{
		logger:  log.With(slog.String("service", "tasks")),
		timeout: timeout,
	}
}

// Go schedules fn. After Drain it refuses new work.
func (r *TaskRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := fn(taskCtx); err != nil {
			r.logger.Warn("background task failed", slog.String("task", name), slog.Any("error", err))
		}
	}()
	return nil
}

// Drain stops accepting tasks and waits for running ones until ctx ends.
func (r *TaskRunner) Drain(ctx context.Context) error {
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
