package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// DefaultInterval is the feed tick.
const DefaultInterval = 2 * time.Second

// Store is the slice of the market store the generator needs.
type Store interface {
	ListActiveExchanges(ctx context.Context) ([]domain.Exchange, error)
	ListActiveTradingPairs(ctx context.Context) ([]domain.TradingPair, error)
	UpsertPrice(ctx context.Context, q domain.PriceQuote) (domain.PriceQuote, error)
}

// Generator refreshes one quote per active (exchange, pair) every tick and
// optionally mirrors the batch to a cache, a time-series history and the bus.
type Generator struct {
	store    Store
	source   PriceSource
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	cache   domain.PriceCache
	history domain.PriceHistory
	bus     domain.SignalBus
}

// NewGenerator creates a Generator. A non-positive interval selects
// DefaultInterval.
func NewGenerator(store Store, source PriceSource, interval time.Duration, logger *slog.Logger) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		store:    store,
		source:   source,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "feed")),
	}
}

// SetClock replaces the quote timestamp source.
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// SetSinks wires the optional mirrors. Any argument may be nil.
func (g *Generator) SetSinks(cache domain.PriceCache, history domain.PriceHistory, bus domain.SignalBus) {
	g.cache = cache
	g.history = history
	g.bus = bus
}

// Run ticks until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.InfoContext(ctx, "price feed started", slog.Duration("interval", g.interval))
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := g.Tick(ctx); err != nil && ctx.Err() == nil {
				g.logger.ErrorContext(ctx, "price feed tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick performs one refresh and returns the stored quotes. A failed sample or
// upsert is logged and skipped. Listing failures abort the tick.
func (g *Generator) Tick(ctx context.Context) ([]domain.PriceQuote, error) {
	exchanges, err := g.store.ListActiveExchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: list exchanges: %w", err)
	}
	pairs, err := g.store.ListActiveTradingPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: list trading pairs: %w", err)
	}

	ts := g.now().UTC()
	quotes := make([]domain.PriceQuote, 0, len(exchanges)*len(pairs))
	for _, ex := range exchanges {
		for _, pair := range pairs {
			if err := ctx.Err(); err != nil {
				return quotes, err
			}
			smp, err := g.source.Sample(ex, pair)
			if err != nil {
				g.logger.WarnContext(ctx, "sample failed",
					slog.String("exchange", ex.Name), slog.String("pair", pair.Symbol), slog.String("error", err.Error()))
				continue
			}
			q := smp.Quote()
			q.ExchangeID = ex.ID
			q.TradingPairID = pair.ID
			q.Timestamp = ts
			stored, err := g.store.UpsertPrice(ctx, q)
			if err != nil {
				g.logger.WarnContext(ctx, "upsert price failed",
					slog.String("exchange", ex.Name), slog.String("pair", pair.Symbol), slog.String("error", err.Error()))
				continue
			}
			quotes = append(quotes, stored)
		}
	}

	g.mirror(ctx, quotes)
	return quotes, nil
}

func (g *Generator) mirror(ctx context.Context, quotes []domain.PriceQuote) {
	if len(quotes) == 0 {
		return
	}
	if g.cache != nil {
		if err := g.cache.SetQuotes(ctx, quotes); err != nil {
			g.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}
	if g.history != nil {
		if err := g.history.RecordQuotes(ctx, quotes); err != nil {
			g.logger.WarnContext(ctx, "price history write failed", slog.String("error", err.Error()))
		}
	}
	if g.bus != nil {
		payload, err := json.Marshal(quotes)
		if err == nil {
			err = g.bus.Publish(ctx, domain.ChannelPrices, payload)
		}
		if err != nil {
			g.logger.WarnContext(ctx, "price publish failed", slog.String("error", err.Error()))
		}
	}
}
