package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTask_RunsUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	task := NewTask("count", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}, discard())

	require.True(t, task.Start(context.Background()))
	assert.False(t, task.Start(context.Background()), "second start is a no-op")
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	task.Stop()
	assert.False(t, task.Running())
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())

	// Stop on a stopped task is harmless.
	task.Stop()
	task.Cancel()
}

func TestTask_StopWaitsForTick(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	task := NewTask("slow", time.Millisecond, func(ctx context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
			return nil
		}
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}, discard())

	task.Start(context.Background())
	<-entered
	task.Stop()
	assert.True(t, finished.Load())
}

func TestTask_ErrorsDoNotStopLoop(t *testing.T) {
	var ticks atomic.Int32
	task := NewTask("failing", 2*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("boom")
	}, discard())

	task.Start(context.Background())
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	task.Cancel()
	assert.False(t, task.Running())
}

func TestTask_Restart(t *testing.T) {
	task := NewTask("restart", time.Hour, func(context.Context) error { return nil }, discard())
	require.True(t, task.Start(context.Background()))
	task.Stop()
	assert.True(t, task.Start(context.Background()))
	task.Stop()
}
