package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/cache/local"
	"github.com/alanyoungcy/arbbot/internal/config"
	"github.com/alanyoungcy/arbbot/internal/store/memory"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWire_InProcessDefaults(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Store{}, deps.Store)
	assert.IsType(t, &memory.AuditLog{}, deps.Audit)
	assert.IsType(t, &local.Bus{}, deps.Bus)
	assert.IsType(t, &local.Locks{}, deps.Locks)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.History)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.HealthChecks)
	assert.False(t, deps.Notifier.Enabled())
}

func TestWire_NotifierSenders(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/hook"

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, deps.Notifier.Enabled())
	assert.True(t, deps.Notifier.Allowed("emergency_stop"))
	assert.False(t, deps.Notifier.Allowed("bot_paused"))
}

func TestWorkerMode_SeedsAndStops(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "worker"
	cfg.Feed.Interval.Duration = 10 * time.Millisecond
	cfg.Scanner.Interval.Duration = 10 * time.Millisecond

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	a := New(&cfg, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.WorkerMode(ctx, deps) }()

	require.Eventually(t, func() bool {
		prices, err := deps.Store.ListLatestPrices(context.Background())
		return err == nil && len(prices) == 12
	}, 2*time.Second, 10*time.Millisecond, "4 exchanges x 3 pairs get quoted")

	settings, err := deps.Store.GetSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.IsActive)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("worker mode did not stop")
	}
}

func TestFullMode_ShutsDownBotWithServer(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Seed.Pairs = []string{"ETH/USDT"}

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	a := New(&cfg, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.FullMode(ctx, deps) }()

	require.Eventually(t, func() bool {
		pairs, err := deps.Store.ListTradingPairs(context.Background())
		return err == nil && len(pairs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("full mode did not stop")
	}
}

func TestSeed_Disabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Seed.Enabled = false
	store := memory.New()

	a := New(&cfg, discard())
	require.NoError(t, a.seed(context.Background(), &Dependencies{Store: store}))

	exchanges, err := store.ListExchanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, exchanges)
}
