package domain

import (
	"context"
	"time"
)

// Bus channels events are published on.
const (
	ChannelPrices        = "prices"
	ChannelOpportunities = "opportunities"
	ChannelTrades        = "trades"
	ChannelBotStatus     = "bot_status"
)

// PriceCache mirrors the latest quotes for fast cross-process reads.
type PriceCache interface {
	SetQuotes(ctx context.Context, quotes []PriceQuote) error
	GetQuote(ctx context.Context, exchangeID, tradingPairID string) (PriceQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus fans events out to subscribers. StreamAppend additionally keeps
// a bounded durable journal per stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StreamTrades is the journal every executed trade is appended to.
const StreamTrades = "stream:trades"

// PriceHistory records quotes and trades as time series.
type PriceHistory interface {
	RecordQuotes(ctx context.Context, quotes []PriceQuote) error
	RecordTrade(ctx context.Context, t Trade) error
}
