package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const (
	// DefaultInterval is the scan tick.
	DefaultInterval = 5 * time.Second
	// DefaultTTL is how long an opportunity survives without a refresh.
	DefaultTTL = 30 * time.Second
)

// Store is the slice of the market store the scanner needs.
type Store interface {
	ListActiveTradingPairs(ctx context.Context) ([]domain.TradingPair, error)
	ListPricesByPair(ctx context.Context, tradingPairID string) ([]domain.PriceQuote, error)
	GetSettings(ctx context.Context) (domain.BotSettings, error)
	UpsertOpportunity(ctx context.Context, opp domain.Opportunity) (domain.Opportunity, bool, error)
	DeactivateExpiredOpportunities(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Created   int `json:"created"`
	Refreshed int `json:"refreshed"`
	Expired   int `json:"expired"`
}

// Scanner compares every pair of quotes per trading pair, upserts profitable
// routes and expires routes that stopped being refreshed.
type Scanner struct {
	store    Store
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewScanner creates a Scanner. Non-positive interval or ttl select the
// defaults.
func NewScanner(store Store, interval, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		store:    store,
		interval: interval,
		ttl:      ttl,
		now:      now,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// SetBus publishes each scan result on domain.ChannelOpportunities.
func (s *Scanner) SetBus(bus domain.SignalBus) { s.bus = bus }

// Run scans every interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner started",
		slog.Duration("interval", s.interval), slog.Duration("ttl", s.ttl))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Scan runs one detection pass followed by expiry. Without settings the
// detection pass is skipped; expiry still runs.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	now := s.now().UTC()

	settings, err := s.store.GetSettings(ctx)
	switch {
	case err == nil:
		if err := s.detect(ctx, settings, now, &res); err != nil {
			return res, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return res, fmt.Errorf("arbitrage: load settings: %w", err)
	}

	expired, err := s.store.DeactivateExpiredOpportunities(ctx, now, s.ttl)
	if err != nil {
		return res, fmt.Errorf("arbitrage: expire opportunities: %w", err)
	}
	res.Expired = expired

	s.publish(ctx, res)
	return res, nil
}

func (s *Scanner) detect(ctx context.Context, settings domain.BotSettings, now time.Time, res *ScanResult) error {
	pairs, err := s.store.ListActiveTradingPairs(ctx)
	if err != nil {
		return fmt.Errorf("arbitrage: list trading pairs: %w", err)
	}
	minMargin, maxPos := settings.MinMargin(), settings.MaxPosition()

	for _, pair := range pairs {
		quotes, err := s.store.ListPricesByPair(ctx, pair.ID)
		if err != nil {
			return fmt.Errorf("arbitrage: list prices for %s: %w", pair.Symbol, err)
		}
		if len(quotes) < 2 {
			continue
		}
		for i := 0; i < len(quotes); i++ {
			for j := i + 1; j < len(quotes); j++ {
				sp, ok := Evaluate(quotes[i], quotes[j], maxPos)
				if !ok || !sp.Exceeds(minMargin) {
					continue
				}
				opp := sp.Opportunity(pair.ID)
				opp.CreatedAt = now
				opp.RefreshedAt = now
				_, created, err := s.store.UpsertOpportunity(ctx, opp)
				if err != nil {
					return fmt.Errorf("arbitrage: upsert opportunity for %s: %w", pair.Symbol, err)
				}
				if !created {
					res.Refreshed++
					continue
				}
				res.Created++
				s.logger.InfoContext(ctx, "opportunity detected",
					slog.String("pair", pair.Symbol),
					slog.String("buy_exchange", opp.BuyExchangeID),
					slog.String("sell_exchange", opp.SellExchangeID),
					slog.String("margin", opp.ProfitMargin),
				)
			}
		}
	}
	return nil
}

func (s *Scanner) publish(ctx context.Context, res ScanResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err == nil {
		err = s.bus.Publish(ctx, domain.ChannelOpportunities, payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "opportunity publish failed", slog.String("error", err.Error()))
	}
}
