package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, opportunity_id, trading_pair_id, buy_exchange_id, sell_exchange_id,
	buy_price::text, sell_price::text, amount::text, profit::text, status, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	trades := []domain.Trade{}
	for rows.Next() {
		var t domain.Trade
		var oppID *string
		var status string
		if err := rows.Scan(
			&t.ID, &oppID, &t.TradingPairID, &t.BuyExchangeID, &t.SellExchangeID,
			&t.BuyPrice, &t.SellPrice, &t.Amount, &t.Profit, &status, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		if oppID != nil {
			t.OpportunityID = *oppID
		}
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CreateTrade appends t to the ledger.
func (s *TradeStore) CreateTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = domain.TradeStatusPending
	}
	const query = `
		INSERT INTO trades (
			id, opportunity_id, trading_pair_id, buy_exchange_id, sell_exchange_id,
			buy_price, sell_price, amount, profit, status, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11
		)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, nullable(t.OpportunityID), t.TradingPairID, t.BuyExchangeID, t.SellExchangeID,
		t.BuyPrice, t.SellPrice, t.Amount, t.Profit, string(t.Status), t.ExecutedAt,
	)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return t, nil
}

// ListRecentTrades returns up to limit trades, newest first.
func (s *TradeStore) ListRecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		return s.ListAllTrades(ctx)
	}
	return s.query(ctx, "list recent trades",
		`SELECT `+tradeSelectCols+` FROM trades ORDER BY executed_at DESC, seq DESC LIMIT $1`, limit)
}

// ListAllTrades returns every recorded trade, newest first.
func (s *TradeStore) ListAllTrades(ctx context.Context) ([]domain.Trade, error) {
	return s.query(ctx, "list all trades",
		`SELECT `+tradeSelectCols+` FROM trades ORDER BY executed_at DESC, seq DESC`)
}

// ListTradesBefore returns trades executed before the cutoff, oldest first.
func (s *TradeStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return s.query(ctx, "list trades before",
		`SELECT `+tradeSelectCols+` FROM trades WHERE executed_at < $1 ORDER BY executed_at, seq`, before)
}

func (s *TradeStore) query(ctx context.Context, op, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return trades, nil
}
