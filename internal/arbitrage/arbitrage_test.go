package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/cache/local"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(ex, price string) domain.PriceQuote {
	return domain.PriceQuote{ExchangeID: ex, TradingPairID: "eth", Price: price}
}

func TestEvaluate(t *testing.T) {
	maxPos := decimal.NewFromInt(5000)

	t.Run("orders buy below sell", func(t *testing.T) {
		sp, ok := Evaluate(quote("kraken", "2880"), quote("binance", "2845"), maxPos)
		require.True(t, ok)
		assert.Equal(t, "binance", sp.Buy.ExchangeID)
		assert.Equal(t, "kraken", sp.Sell.ExchangeID)

		opp := sp.Opportunity("eth")
		assert.Equal(t, "2845.00000000", opp.BuyPrice)
		assert.Equal(t, "2880.00000000", opp.SellPrice)
		assert.Equal(t, "1.2302", opp.ProfitMargin)
		assert.Equal(t, "61.51142355", opp.PotentialProfit)
	})

	t.Run("equal prices yield nothing", func(t *testing.T) {
		_, ok := Evaluate(quote("a", "100.00000000"), quote("b", "100"), maxPos)
		assert.False(t, ok)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		sp, ok := Evaluate(quote("a", "100"), quote("b", "101"), maxPos)
		require.True(t, ok)
		assert.False(t, sp.Exceeds(decimal.NewFromInt(1)))
		assert.True(t, sp.Exceeds(decimal.RequireFromString("0.99")))
	})
}

type fixture struct {
	store *memory.Store
	pair  domain.TradingPair
	exs   map[string]domain.Exchange
}

func newFixture(t *testing.T, minMargin string, prices map[string]string) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{store: memory.New(), exs: map[string]domain.Exchange{}}

	var err error
	f.pair, err = f.store.CreateTradingPair(ctx, domain.TradingPair{Symbol: "ETH/USDT", IsActive: true})
	require.NoError(t, err)
	for _, name := range []string{"Binance", "Coinbase Pro", "Kraken"} {
		ex, err := f.store.CreateExchange(ctx, domain.Exchange{Name: name, IsActive: true})
		require.NoError(t, err)
		f.exs[name] = ex
	}
	for name, p := range prices {
		_, err := f.store.UpsertPrice(ctx, domain.PriceQuote{ExchangeID: f.exs[name].ID, TradingPairID: f.pair.ID, Price: p})
		require.NoError(t, err)
	}
	if minMargin != "" {
		settings := domain.SeedSettings()
		settings.MinProfitMargin = minMargin
		_, err := f.store.InitSettings(ctx, settings)
		require.NoError(t, err)
	}
	return f
}

func TestScanner_PairwiseDetection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1.0", map[string]string{
		"Binance":      "2845",
		"Coinbase Pro": "2880",
		"Kraken":       "2850",
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScanner(f.store, 0, 0, func() time.Time { return now }, discard())

	res, err := s.Scan(ctx)
	require.NoError(t, err)
	// 2845->2880 (1.23%) and 2850->2880 (1.05%) pass; 2845->2850 (0.18%) does not.
	assert.Equal(t, ScanResult{Created: 2}, res)

	active, err := f.store.ListActiveOpportunities(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, o := range active {
		assert.Equal(t, f.exs["Coinbase Pro"].ID, o.SellExchangeID)
		assert.True(t, domain.Dec(o.BuyPrice).LessThan(domain.Dec(o.SellPrice)))
		assert.True(t, o.CreatedAt.Equal(now))
	}
}

func TestScanner_Example(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1.0", map[string]string{"Binance": "2845", "Kraken": "2880"})
	require.NoError(t, func() error {
		maxPos := "5000"
		_, err := f.store.UpdateSettings(ctx, domain.SettingsPatch{MaxPositionSize: &maxPos})
		return err
	}())

	s := NewScanner(f.store, 0, 0, nil, discard())
	_, err := s.Scan(ctx)
	require.NoError(t, err)

	active, _ := f.store.ListActiveOpportunities(ctx)
	require.Len(t, active, 1)
	o := active[0]
	assert.Equal(t, f.exs["Binance"].ID, o.BuyExchangeID)
	assert.Equal(t, f.exs["Kraken"].ID, o.SellExchangeID)
	assert.Equal(t, "2845.00000000", o.BuyPrice)
	assert.Equal(t, "2880.00000000", o.SellPrice)
	assert.Equal(t, "1.2302", o.ProfitMargin)
	assert.Equal(t, "61.51142355", o.PotentialProfit)
}

func TestScanner_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1.0", map[string]string{"Binance": "2845", "Kraken": "2880"})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScanner(f.store, 0, 0, func() time.Time { return clock }, discard())

	first, err := s.Scan(ctx)
	require.NoError(t, err)
	clock = clock.Add(5 * time.Second)
	second, err := s.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, ScanResult{Refreshed: 1}, second)
	active, _ := f.store.ListActiveOpportunities(ctx)
	require.Len(t, active, 1)
	assert.True(t, active[0].RefreshedAt.Equal(clock))
}

func TestScanner_ExpiresOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1.0", map[string]string{"Binance": "2845", "Kraken": "2880"})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScanner(f.store, 0, 30*time.Second, func() time.Time { return clock }, discard())

	_, err := s.Scan(ctx)
	require.NoError(t, err)

	// The spread closes, so the route is no longer refreshed.
	_, err = f.store.UpsertPrice(ctx, domain.PriceQuote{ExchangeID: f.exs["Kraken"].ID, TradingPairID: f.pair.ID, Price: "2845"})
	require.NoError(t, err)

	clock = clock.Add(29 * time.Second)
	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)

	clock = clock.Add(time.Second)
	res, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	clock = clock.Add(time.Minute)
	res, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)
}

func TestScanner_SkipsWithoutSettingsOrQuotes(t *testing.T) {
	ctx := context.Background()

	t.Run("no settings", func(t *testing.T) {
		f := newFixture(t, "", map[string]string{"Binance": "2845", "Kraken": "2880"})
		res, err := NewScanner(f.store, 0, 0, nil, discard()).Scan(ctx)
		require.NoError(t, err)
		assert.Zero(t, res)
	})

	t.Run("single quote", func(t *testing.T) {
		f := newFixture(t, "0", map[string]string{"Binance": "2845"})
		res, err := NewScanner(f.store, 0, 0, nil, discard()).Scan(ctx)
		require.NoError(t, err)
		assert.Zero(t, res)
	})
}

func TestScanner_PublishesResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, "1.0", map[string]string{"Binance": "2845", "Kraken": "2880"})
	bus := local.NewBus()
	events, err := bus.Subscribe(ctx, domain.ChannelOpportunities)
	require.NoError(t, err)

	s := NewScanner(f.store, 0, 0, nil, discard())
	s.SetBus(bus)
	_, err = s.Scan(ctx)
	require.NoError(t, err)

	select {
	case msg := <-events:
		assert.JSONEq(t, `{"created":1,"refreshed":0,"expired":0}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no opportunities event")
	}
}
