package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// ExchangeStore implements domain.ExchangeStore using PostgreSQL.
type ExchangeStore struct {
	pool *pgxpool.Pool
}

// NewExchangeStore creates a new ExchangeStore backed by the given connection pool.
func NewExchangeStore(pool *pgxpool.Pool) *ExchangeStore {
	return &ExchangeStore{pool: pool}
}

const exchangeSelectCols = `id, name, is_active, created_at`

func scanExchangeRows(rows pgx.Rows) ([]domain.Exchange, error) {
	out := []domain.Exchange{}
	for rows.Next() {
		var ex domain.Exchange
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.IsActive, &ex.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// CreateExchange inserts ex, assigning an ID and creation time when empty.
func (s *ExchangeStore) CreateExchange(ctx context.Context, ex domain.Exchange) (domain.Exchange, error) {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO exchanges (id, name, is_active, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING created_at`

	var createdAt any
	if !ex.CreatedAt.IsZero() {
		createdAt = ex.CreatedAt
	}
	if err := s.pool.QueryRow(ctx, query, ex.ID, ex.Name, ex.IsActive, createdAt).Scan(&ex.CreatedAt); err != nil {
		return domain.Exchange{}, fmt.Errorf("postgres: create exchange %s: %w", ex.Name, err)
	}
	return ex, nil
}

// GetExchange retrieves an exchange by its ID.
func (s *ExchangeStore) GetExchange(ctx context.Context, id string) (domain.Exchange, error) {
	query := `SELECT ` + exchangeSelectCols + ` FROM exchanges WHERE id = $1`
	var ex domain.Exchange
	err := s.pool.QueryRow(ctx, query, id).Scan(&ex.ID, &ex.Name, &ex.IsActive, &ex.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Exchange{}, domain.ErrNotFound
		}
		return domain.Exchange{}, fmt.Errorf("postgres: get exchange %s: %w", id, err)
	}
	return ex, nil
}

// ListExchanges returns all exchanges, oldest first.
func (s *ExchangeStore) ListExchanges(ctx context.Context) ([]domain.Exchange, error) {
	return s.list(ctx, `SELECT `+exchangeSelectCols+` FROM exchanges ORDER BY created_at, id`)
}

// ListActiveExchanges returns the exchanges flagged active.
func (s *ExchangeStore) ListActiveExchanges(ctx context.Context) ([]domain.Exchange, error) {
	return s.list(ctx, `SELECT `+exchangeSelectCols+` FROM exchanges WHERE is_active ORDER BY created_at, id`)
}

func (s *ExchangeStore) list(ctx context.Context, query string) ([]domain.Exchange, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exchanges: %w", err)
	}
	defer rows.Close()
	out, err := scanExchangeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exchanges: %w", err)
	}
	return out, nil
}

// SetExchangeActive toggles the only mutable exchange attribute.
func (s *ExchangeStore) SetExchangeActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE exchanges SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("postgres: set exchange active %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TradingPairStore implements domain.TradingPairStore using PostgreSQL.
type TradingPairStore struct {
	pool *pgxpool.Pool
}

// NewTradingPairStore creates a new TradingPairStore backed by the given connection pool.
func NewTradingPairStore(pool *pgxpool.Pool) *TradingPairStore {
	return &TradingPairStore{pool: pool}
}

const pairSelectCols = `id, symbol, base_asset, quote_asset, is_active`

// CreateTradingPair inserts pair, assigning an ID when empty.
func (s *TradingPairStore) CreateTradingPair(ctx context.Context, pair domain.TradingPair) (domain.TradingPair, error) {
	if pair.ID == "" {
		pair.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO trading_pairs (id, symbol, base_asset, quote_asset, is_active)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, pair.ID, pair.Symbol, pair.BaseAsset, pair.QuoteAsset, pair.IsActive); err != nil {
		return domain.TradingPair{}, fmt.Errorf("postgres: create trading pair %s: %w", pair.Symbol, err)
	}
	return pair, nil
}

// GetTradingPair retrieves a trading pair by its ID.
func (s *TradingPairStore) GetTradingPair(ctx context.Context, id string) (domain.TradingPair, error) {
	query := `SELECT ` + pairSelectCols + ` FROM trading_pairs WHERE id = $1`
	var p domain.TradingPair
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Symbol, &p.BaseAsset, &p.QuoteAsset, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradingPair{}, domain.ErrNotFound
		}
		return domain.TradingPair{}, fmt.Errorf("postgres: get trading pair %s: %w", id, err)
	}
	return p, nil
}

// ListTradingPairs returns all trading pairs ordered by symbol.
func (s *TradingPairStore) ListTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	return s.list(ctx, `SELECT `+pairSelectCols+` FROM trading_pairs ORDER BY symbol`)
}

// ListActiveTradingPairs returns the trading pairs flagged active.
func (s *TradingPairStore) ListActiveTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	return s.list(ctx, `SELECT `+pairSelectCols+` FROM trading_pairs WHERE is_active ORDER BY symbol`)
}

func (s *TradingPairStore) list(ctx context.Context, query string) ([]domain.TradingPair, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trading pairs: %w", err)
	}
	defer rows.Close()

	out := []domain.TradingPair{}
	for rows.Next() {
		var p domain.TradingPair
		if err := rows.Scan(&p.ID, &p.Symbol, &p.BaseAsset, &p.QuoteAsset, &p.IsActive); err != nil {
			return nil, fmt.Errorf("postgres: scan trading pair: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trading pairs rows: %w", err)
	}
	return out, nil
}

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

const priceSelectCols = `id, exchange_id, trading_pair_id, price::text, volume_24h::text, change_24h::text, ts`

func scanPrice(row pgx.Row) (domain.PriceQuote, error) {
	var q domain.PriceQuote
	var change *string
	if err := row.Scan(&q.ID, &q.ExchangeID, &q.TradingPairID, &q.Price, &q.Volume24h, &change, &q.Timestamp); err != nil {
		return domain.PriceQuote{}, err
	}
	if change != nil {
		q.Change24h = *change
	}
	return q, nil
}

// UpsertPrice replaces the (exchange, pair) quote in place. The stored row
// keeps its original ID.
func (s *PriceStore) UpsertPrice(ctx context.Context, q domain.PriceQuote) (domain.PriceQuote, error) {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	query := `
		INSERT INTO price_quotes (id, exchange_id, trading_pair_id, price, volume_24h, change_24h, ts)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (exchange_id, trading_pair_id) DO UPDATE SET
			price      = EXCLUDED.price,
			volume_24h = EXCLUDED.volume_24h,
			change_24h = EXCLUDED.change_24h,
			ts         = EXCLUDED.ts
		RETURNING ` + priceSelectCols

	volume := q.Volume24h
	if volume == "" {
		volume = "0"
	}
	stored, err := scanPrice(s.pool.QueryRow(ctx, query,
		q.ID, q.ExchangeID, q.TradingPairID, q.Price, volume, nullable(q.Change24h), q.Timestamp,
	))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("postgres: upsert price %s/%s: %w", q.ExchangeID, q.TradingPairID, err)
	}
	return stored, nil
}

// ListLatestPrices returns the current quote for every (exchange, pair).
func (s *PriceStore) ListLatestPrices(ctx context.Context) ([]domain.PriceQuote, error) {
	return s.list(ctx, `SELECT `+priceSelectCols+` FROM price_quotes ORDER BY seq`)
}

// ListPricesByPair returns the current quotes for one trading pair.
func (s *PriceStore) ListPricesByPair(ctx context.Context, tradingPairID string) ([]domain.PriceQuote, error) {
	return s.list(ctx, `SELECT `+priceSelectCols+` FROM price_quotes WHERE trading_pair_id = $1 ORDER BY seq`, tradingPairID)
}

func (s *PriceStore) list(ctx context.Context, query string, args ...any) ([]domain.PriceQuote, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices: %w", err)
	}
	defer rows.Close()

	out := []domain.PriceQuote{}
	for rows.Next() {
		q, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prices rows: %w", err)
	}
	return out, nil
}

// nullable maps an empty decimal string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
