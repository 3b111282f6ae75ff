package domain

import (
	"context"
	"time"
)

// ExchangeStore persists exchanges.
type ExchangeStore interface {
	CreateExchange(ctx context.Context, ex Exchange) (Exchange, error)
	GetExchange(ctx context.Context, id string) (Exchange, error)
	ListExchanges(ctx context.Context) ([]Exchange, error)
	ListActiveExchanges(ctx context.Context) ([]Exchange, error)
	SetExchangeActive(ctx context.Context, id string, active bool) error
}

// TradingPairStore persists trading pairs.
type TradingPairStore interface {
	CreateTradingPair(ctx context.Context, pair TradingPair) (TradingPair, error)
	GetTradingPair(ctx context.Context, id string) (TradingPair, error)
	ListTradingPairs(ctx context.Context) ([]TradingPair, error)
	ListActiveTradingPairs(ctx context.Context) ([]TradingPair, error)
}

// PriceStore holds the latest quote per (exchange, pair).
type PriceStore interface {
	// UpsertPrice replaces the quote for the quote's (exchange, pair), creating
	// it on first sight.
	UpsertPrice(ctx context.Context, q PriceQuote) (PriceQuote, error)
	ListLatestPrices(ctx context.Context) ([]PriceQuote, error)
	ListPricesByPair(ctx context.Context, tradingPairID string) ([]PriceQuote, error)
}

// OpportunityStore persists opportunities. UpsertOpportunity and
// ClaimOpportunity are atomic with respect to concurrent callers.
type OpportunityStore interface {
	GetOpportunity(ctx context.Context, id string) (Opportunity, error)
	ListActiveOpportunities(ctx context.Context) ([]Opportunity, error)
	// UpsertOpportunity refreshes the active opportunity on opp's route or
	// creates one. created reports which happened.
	UpsertOpportunity(ctx context.Context, opp Opportunity) (stored Opportunity, created bool, err error)
	// ClaimOpportunity atomically flips an active opportunity to inactive and
	// returns it. It returns ErrNotFound for unknown ids and
	// ErrOpportunityInactive when the opportunity is already inactive.
	ClaimOpportunity(ctx context.Context, id string) (Opportunity, error)
	// ReleaseOpportunity undoes a claim whose trade could not be recorded.
	// It is a no-op when the route already has a newer active opportunity.
	ReleaseOpportunity(ctx context.Context, id string) error
	DeactivateExpiredOpportunities(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	DeactivateAllOpportunities(ctx context.Context) (int, error)
}

// TradeStore is the append-only trade ledger.
type TradeStore interface {
	CreateTrade(ctx context.Context, t Trade) (Trade, error)
	// ListRecentTrades returns up to limit trades, newest first.
	ListRecentTrades(ctx context.Context, limit int) ([]Trade, error)
	ListAllTrades(ctx context.Context) ([]Trade, error)
	ListTradesBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// SettingsStore holds the singleton bot settings.
type SettingsStore interface {
	// GetSettings returns ErrNotFound when no settings exist yet.
	GetSettings(ctx context.Context) (BotSettings, error)
	// UpdateSettings merges patch into the current settings, creating them
	// from LazySettings when absent.
	UpdateSettings(ctx context.Context, patch SettingsPatch) (BotSettings, error)
	// InitSettings writes s only when no settings exist. It reports whether
	// it wrote.
	InitSettings(ctx context.Context, s BotSettings) (bool, error)
}

// MarketStore is the full Market State Store contract.
type MarketStore interface {
	ExchangeStore
	TradingPairStore
	PriceStore
	OpportunityStore
	TradeStore
	SettingsStore
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
