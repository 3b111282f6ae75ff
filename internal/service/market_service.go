package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// DefaultRecentTrades is the RecentTrades limit when the caller passes none.
const DefaultRecentTrades = 10

// MarketService serves the read models: reference data, quotes,
// opportunities and the trade ledger, joined with their references.
type MarketService struct {
	store  domain.MarketStore
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(store domain.MarketStore, cache domain.PriceCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// Exchanges returns the active exchanges.
func (s *MarketService) Exchanges(ctx context.Context) ([]domain.Exchange, error) {
	out, err := s.store.ListActiveExchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list exchanges: %w", err)
	}
	return out, nil
}

// TradingPairs returns the active trading pairs.
func (s *MarketService) TradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	out, err := s.store.ListActiveTradingPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list trading pairs: %w", err)
	}
	return out, nil
}

// LatestPrices returns every live quote with its exchange and pair.
func (s *MarketService) LatestPrices(ctx context.Context) ([]domain.PriceQuoteDetail, error) {
	quotes, err := s.store.ListLatestPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list prices: %w", err)
	}
	return QuoteDetails(ctx, s.store, quotes)
}

// Quote returns the live quote for one (exchange, pair). The cache is
// consulted first; a miss or cache failure falls back to the store.
func (s *MarketService) Quote(ctx context.Context, exchangeID, tradingPairID string) (domain.PriceQuote, error) {
	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, exchangeID, tradingPairID)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		}
	}
	quotes, err := s.store.ListPricesByPair(ctx, tradingPairID)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("market_service: list prices: %w", err)
	}
	for _, q := range quotes {
		if q.ExchangeID == exchangeID {
			return q, nil
		}
	}
	return domain.PriceQuote{}, domain.ErrNotFound
}

// ActiveOpportunities returns active opportunities with their references.
func (s *MarketService) ActiveOpportunities(ctx context.Context) ([]domain.OpportunityDetail, error) {
	opps, err := s.store.ListActiveOpportunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list opportunities: %w", err)
	}
	return OpportunityDetails(ctx, s.store, opps)
}

// RecentTrades returns the newest trades. limit <= 0 selects
// DefaultRecentTrades.
func (s *MarketService) RecentTrades(ctx context.Context, limit int) ([]domain.TradeDetail, error) {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}
	trades, err := s.store.ListRecentTrades(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: list trades: %w", err)
	}
	return TradeDetails(ctx, s.store, trades)
}

func (s *MarketService) AllTrades(ctx context.Context) ([]domain.TradeDetail, error) {
	trades, err := s.store.ListAllTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list trades: %w", err)
	}
	return TradeDetails(ctx, s.store, trades)
}
