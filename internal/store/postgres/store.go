package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// MarketStore composes the per-table stores into a domain.MarketStore.
type MarketStore struct {
	*ExchangeStore
	*TradingPairStore
	*PriceStore
	*OpportunityStore
	*TradeStore
	*SettingsStore
}

// NewMarketStore builds every table store on the same pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{
		ExchangeStore:    NewExchangeStore(pool),
		TradingPairStore: NewTradingPairStore(pool),
		PriceStore:       NewPriceStore(pool),
		OpportunityStore: NewOpportunityStore(pool),
		TradeStore:       NewTradeStore(pool),
		SettingsStore:    NewSettingsStore(pool),
	}
}

// Compile-time interface checks.
var (
	_ domain.MarketStore = (*MarketStore)(nil)
	_ domain.AuditStore  = (*AuditStore)(nil)
)
