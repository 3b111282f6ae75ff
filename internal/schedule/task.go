// Package schedule runs a function on a fixed interval under start/stop
// control.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is one tick of work. Errors are logged and the loop continues.
type Func func(ctx context.Context) error

// Task runs fn every interval between Start and Stop. The first run happens
// one interval after Start. Ticks never overlap.
type Task struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string, interval time.Duration, fn Func, logger *slog.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(slog.String("component", "schedule"), slog.String("task", name)),
	}
}

// Start launches the loop under a context derived from parent. It returns
// false when the task is already running.
func (t *Task) Start(parent context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	go t.loop(ctx, done)
	return true
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.fn(ctx); err != nil && ctx.Err() == nil {
				t.logger.ErrorContext(ctx, "tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (t *Task) Stop() {
	if done := t.halt(); done != nil {
		<-done
	}
}

// Cancel cancels the loop without waiting.
func (t *Task) Cancel() {
	t.halt()
}

func (t *Task) halt() chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	done := t.done
	t.cancel, t.done = nil, nil
	return done
}

// Running reports whether the loop has been started and not halted.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
