// Package memory implements the domain Market State Store in process memory.
// Each collection is guarded by its own mutex; single logical updates such as
// an opportunity upsert or claim happen under one critical section.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Store is an in-memory domain.MarketStore. The zero value is not usable;
// call New.
type Store struct {
	exMu      sync.RWMutex
	exchanges map[string]domain.Exchange
	exOrder   []string

	pairMu    sync.RWMutex
	pairs     map[string]domain.TradingPair
	pairOrder []string

	priceMu    sync.RWMutex
	prices     map[priceKey]domain.PriceQuote
	priceOrder []priceKey

	oppMu        sync.RWMutex
	opps         map[string]domain.Opportunity
	oppOrder     []string
	routes       map[domain.Route]string
	inactive     int
	keepInactive int

	tradeMu sync.RWMutex
	trades  []domain.Trade

	settingsMu sync.RWMutex
	settings   *domain.BotSettings
}

type priceKey struct {
	exchangeID    string
	tradingPairID string
}

// New returns an empty store. Use service.Bootstrap to seed it.
func New() *Store {
	return &Store{
		exchanges: make(map[string]domain.Exchange),
		pairs:     make(map[string]domain.TradingPair),
		prices:    make(map[priceKey]domain.PriceQuote),
		opps:      make(map[string]domain.Opportunity),
		routes:    make(map[domain.Route]string),

		keepInactive: defaultKeepInactive,
	}
}

func newID() string {
	return uuid.New().String()
}

// CreateExchange stores ex, assigning an ID when empty.
func (s *Store) CreateExchange(_ context.Context, ex domain.Exchange) (domain.Exchange, error) {
	if ex.ID == "" {
		ex.ID = newID()
	}
	s.exMu.Lock()
	defer s.exMu.Unlock()
	if _, ok := s.exchanges[ex.ID]; !ok {
		s.exOrder = append(s.exOrder, ex.ID)
	}
	s.exchanges[ex.ID] = ex
	return ex, nil
}

// GetExchange retrieves an exchange by its ID.
func (s *Store) GetExchange(_ context.Context, id string) (domain.Exchange, error) {
	s.exMu.RLock()
	defer s.exMu.RUnlock()
	ex, ok := s.exchanges[id]
	if !ok {
		return domain.Exchange{}, domain.ErrNotFound
	}
	return ex, nil
}

// ListExchanges returns all exchanges in insertion order.
func (s *Store) ListExchanges(_ context.Context) ([]domain.Exchange, error) {
	return s.listExchanges(false), nil
}

// ListActiveExchanges returns the exchanges flagged active.
func (s *Store) ListActiveExchanges(_ context.Context) ([]domain.Exchange, error) {
	return s.listExchanges(true), nil
}

func (s *Store) listExchanges(activeOnly bool) []domain.Exchange {
	s.exMu.RLock()
	defer s.exMu.RUnlock()
	out := make([]domain.Exchange, 0, len(s.exOrder))
	for _, id := range s.exOrder {
		ex := s.exchanges[id]
		if activeOnly && !ex.IsActive {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// SetExchangeActive toggles an exchange's active flag.
func (s *Store) SetExchangeActive(_ context.Context, id string, active bool) error {
	s.exMu.Lock()
	defer s.exMu.Unlock()
	ex, ok := s.exchanges[id]
	if !ok {
		return domain.ErrNotFound
	}
	ex.IsActive = active
	s.exchanges[id] = ex
	return nil
}

// CreateTradingPair stores pair, assigning an ID when empty.
func (s *Store) CreateTradingPair(_ context.Context, pair domain.TradingPair) (domain.TradingPair, error) {
	if pair.ID == "" {
		pair.ID = newID()
	}
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	if _, ok := s.pairs[pair.ID]; !ok {
		s.pairOrder = append(s.pairOrder, pair.ID)
	}
	s.pairs[pair.ID] = pair
	return pair, nil
}

// GetTradingPair retrieves a trading pair by its ID.
func (s *Store) GetTradingPair(_ context.Context, id string) (domain.TradingPair, error) {
	s.pairMu.RLock()
	defer s.pairMu.RUnlock()
	p, ok := s.pairs[id]
	if !ok {
		return domain.TradingPair{}, domain.ErrNotFound
	}
	return p, nil
}

// ListTradingPairs returns all trading pairs in insertion order.
func (s *Store) ListTradingPairs(_ context.Context) ([]domain.TradingPair, error) {
	return s.listPairs(false), nil
}

// ListActiveTradingPairs returns the trading pairs flagged active.
func (s *Store) ListActiveTradingPairs(_ context.Context) ([]domain.TradingPair, error) {
	return s.listPairs(true), nil
}

func (s *Store) listPairs(activeOnly bool) []domain.TradingPair {
	s.pairMu.RLock()
	defer s.pairMu.RUnlock()
	out := make([]domain.TradingPair, 0, len(s.pairOrder))
	for _, id := range s.pairOrder {
		p := s.pairs[id]
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out
}

// UpsertPrice replaces the quote for (q.ExchangeID, q.TradingPairID). The
// existing ID is kept so the record is updated in place.
func (s *Store) UpsertPrice(_ context.Context, q domain.PriceQuote) (domain.PriceQuote, error) {
	k := priceKey{exchangeID: q.ExchangeID, tradingPairID: q.TradingPairID}
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	if cur, ok := s.prices[k]; ok {
		q.ID = cur.ID
	} else {
		if q.ID == "" {
			q.ID = newID()
		}
		s.priceOrder = append(s.priceOrder, k)
	}
	s.prices[k] = q
	return q, nil
}

// ListLatestPrices returns the current quote for every (exchange, pair).
func (s *Store) ListLatestPrices(_ context.Context) ([]domain.PriceQuote, error) {
	s.priceMu.RLock()
	defer s.priceMu.RUnlock()
	out := make([]domain.PriceQuote, 0, len(s.priceOrder))
	for _, k := range s.priceOrder {
		out = append(out, s.prices[k])
	}
	return out, nil
}

// ListPricesByPair returns the current quotes for one trading pair.
func (s *Store) ListPricesByPair(_ context.Context, tradingPairID string) ([]domain.PriceQuote, error) {
	s.priceMu.RLock()
	defer s.priceMu.RUnlock()
	var out []domain.PriceQuote
	for _, k := range s.priceOrder {
		if k.tradingPairID == tradingPairID {
			out = append(out, s.prices[k])
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*Store)(nil)
