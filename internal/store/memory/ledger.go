package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// CreateTrade appends t to the ledger, assigning an ID when empty.
func (s *Store) CreateTrade(_ context.Context, t domain.Trade) (domain.Trade, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()
	s.trades = append(s.trades, t)
	return t, nil
}

// ListRecentTrades returns up to limit trades ordered by ExecutedAt, newest
// first. Trades with equal timestamps keep reverse insertion order.
func (s *Store) ListRecentTrades(_ context.Context, limit int) ([]domain.Trade, error) {
	out := s.newestFirst()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListAllTrades returns every recorded trade, newest first.
func (s *Store) ListAllTrades(_ context.Context) ([]domain.Trade, error) {
	return s.newestFirst(), nil
}

// ListTradesBefore returns trades executed strictly before the cutoff.
func (s *Store) ListTradesBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	s.tradeMu.RLock()
	defer s.tradeMu.RUnlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.ExecutedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) newestFirst() []domain.Trade {
	s.tradeMu.RLock()
	out := make([]domain.Trade, 0, len(s.trades))
	for i := len(s.trades) - 1; i >= 0; i-- {
		out = append(out, s.trades[i])
	}
	s.tradeMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutedAt.After(out[j].ExecutedAt)
	})
	return out
}

// GetSettings returns the bot settings, or domain.ErrNotFound before InitSettings.
func (s *Store) GetSettings(_ context.Context) (domain.BotSettings, error) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	if s.settings == nil {
		return domain.BotSettings{}, domain.ErrNotFound
	}
	return *s.settings, nil
}

// UpdateSettings merges patch into the singleton, creating it from
// domain.LazySettings on first write.
func (s *Store) UpdateSettings(_ context.Context, patch domain.SettingsPatch) (domain.BotSettings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	base := domain.LazySettings()
	if s.settings != nil {
		base = *s.settings
	}
	merged, err := base.Apply(patch, time.Now())
	if err != nil {
		return domain.BotSettings{}, err
	}
	s.settings = &merged
	return merged, nil
}

// InitSettings stores init when no settings exist yet and reports whether it did.
func (s *Store) InitSettings(_ context.Context, init domain.BotSettings) (bool, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if s.settings != nil {
		return false, nil
	}
	if init.UpdatedAt.IsZero() {
		init.UpdatedAt = time.Now()
	}
	s.settings = &init
	return true, nil
}
