package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// refs resolves exchanges and pairs once per read and caches them for the
// rest of the join.
type refs struct {
	store     domain.MarketStore
	exchanges map[string]domain.Exchange
	pairs     map[string]domain.TradingPair
}

func newRefs(store domain.MarketStore) *refs {
	return &refs{
		store:     store,
		exchanges: make(map[string]domain.Exchange),
		pairs:     make(map[string]domain.TradingPair),
	}
}

func (r *refs) exchange(ctx context.Context, id string) (domain.Exchange, error) {
	if ex, ok := r.exchanges[id]; ok {
		return ex, nil
	}
	ex, err := r.store.GetExchange(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Exchange{}, &domain.DanglingReferenceError{Entity: "exchange", ID: id}
	}
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("service: resolve exchange %s: %w", id, err)
	}
	r.exchanges[id] = ex
	return ex, nil
}

func (r *refs) pair(ctx context.Context, id string) (domain.TradingPair, error) {
	if p, ok := r.pairs[id]; ok {
		return p, nil
	}
	p, err := r.store.GetTradingPair(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TradingPair{}, &domain.DanglingReferenceError{Entity: "trading pair", ID: id}
	}
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("service: resolve trading pair %s: %w", id, err)
	}
	r.pairs[id] = p
	return p, nil
}

// route resolves the pair and both exchanges of a route.
func (r *refs) route(ctx context.Context, pairID, buyID, sellID string) (domain.TradingPair, domain.Exchange, domain.Exchange, error) {
	pair, err := r.pair(ctx, pairID)
	if err != nil {
		return domain.TradingPair{}, domain.Exchange{}, domain.Exchange{}, err
	}
	buy, err := r.exchange(ctx, buyID)
	if err != nil {
		return domain.TradingPair{}, domain.Exchange{}, domain.Exchange{}, err
	}
	sell, err := r.exchange(ctx, sellID)
	if err != nil {
		return domain.TradingPair{}, domain.Exchange{}, domain.Exchange{}, err
	}
	return pair, buy, sell, nil
}

// QuoteDetails joins each quote with its exchange and pair.
func QuoteDetails(ctx context.Context, store domain.MarketStore, quotes []domain.PriceQuote) ([]domain.PriceQuoteDetail, error) {
	r := newRefs(store)
	out := make([]domain.PriceQuoteDetail, 0, len(quotes))
	for _, q := range quotes {
		ex, err := r.exchange(ctx, q.ExchangeID)
		if err != nil {
			return nil, err
		}
		pair, err := r.pair(ctx, q.TradingPairID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceQuoteDetail{PriceQuote: q, Exchange: ex, TradingPair: pair})
	}
	return out, nil
}

// OpportunityDetails joins each opportunity with its pair and exchanges.
func OpportunityDetails(ctx context.Context, store domain.MarketStore, opps []domain.Opportunity) ([]domain.OpportunityDetail, error) {
	r := newRefs(store)
	out := make([]domain.OpportunityDetail, 0, len(opps))
	for _, o := range opps {
		pair, buy, sell, err := r.route(ctx, o.TradingPairID, o.BuyExchangeID, o.SellExchangeID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.OpportunityDetail{Opportunity: o, TradingPair: pair, BuyExchange: buy, SellExchange: sell})
	}
	return out, nil
}

// TradeDetails joins each trade with its pair and exchanges.
func TradeDetails(ctx context.Context, store domain.MarketStore, trades []domain.Trade) ([]domain.TradeDetail, error) {
	r := newRefs(store)
	out := make([]domain.TradeDetail, 0, len(trades))
	for _, t := range trades {
		pair, buy, sell, err := r.route(ctx, t.TradingPairID, t.BuyExchangeID, t.SellExchangeID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TradeDetail{Trade: t, TradingPair: pair, BuyExchange: buy, SellExchange: sell})
	}
	return out, nil
}
