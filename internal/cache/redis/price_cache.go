package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// PriceCache mirrors the latest quote per (exchange, pair) into Redis hashes
// at "quote:{exchangeID}:{tradingPairID}". Entries expire after ttl so a
// stalled feed does not serve old prices forever.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

func (pc *PriceCache) quoteKey(exchangeID, tradingPairID string) string {
	return pc.c.key("quote", exchangeID, tradingPairID)
}

// SetQuotes writes all quotes in one pipeline.
func (pc *PriceCache) SetQuotes(ctx context.Context, quotes []domain.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := pc.c.rdb.Pipeline()
	for _, q := range quotes {
		key := pc.quoteKey(q.ExchangeID, q.TradingPairID)
		pipe.HSet(ctx, key, map[string]any{
			"id":     q.ID,
			"price":  q.Price,
			"volume": q.Volume24h,
			"change": q.Change24h,
			"ts":     strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		})
		if pc.ttl > 0 {
			pipe.Expire(ctx, key, pc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quotes: %w", err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when no live quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, exchangeID, tradingPairID string) (domain.PriceQuote, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.quoteKey(exchangeID, tradingPairID)).Result()
	if err != nil && err != redis.Nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s/%s: %w", exchangeID, tradingPairID, err)
	}
	if len(vals) == 0 || vals["price"] == "" {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	q := domain.PriceQuote{
		ID:            vals["id"],
		ExchangeID:    exchangeID,
		TradingPairID: tradingPairID,
		Price:         vals["price"],
		Volume24h:     vals["volume"],
		Change24h:     vals["change"],
	}
	if ts, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		q.Timestamp = time.Unix(0, ts).UTC()
	}
	return q, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
