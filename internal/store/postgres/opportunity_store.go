package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. The
// partial unique index on active routes makes upsert and claim atomic.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, trading_pair_id, buy_exchange_id, sell_exchange_id,
	buy_price::text, sell_price::text, profit_margin::text, potential_profit::text,
	is_active, created_at, refreshed_at`

func opportunityDest(o *domain.Opportunity) []any {
	return []any{
		&o.ID, &o.TradingPairID, &o.BuyExchangeID, &o.SellExchangeID,
		&o.BuyPrice, &o.SellPrice, &o.ProfitMargin, &o.PotentialProfit,
		&o.IsActive, &o.CreatedAt, &o.RefreshedAt,
	}
}

// GetOpportunity retrieves an opportunity by its ID, active or not.
func (s *OpportunityStore) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE id = $1`
	var o domain.Opportunity
	if err := s.pool.QueryRow(ctx, query, id).Scan(opportunityDest(&o)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// ListActiveOpportunities returns active opportunities in creation order.
func (s *OpportunityStore) ListActiveOpportunities(ctx context.Context) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE is_active ORDER BY seq`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active opportunities: %w", err)
	}
	defer rows.Close()

	out := []domain.Opportunity{}
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(opportunityDest(&o)...); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active opportunities rows: %w", err)
	}
	return out, nil
}

// UpsertOpportunity inserts opp or, when its route already has an active
// opportunity, refreshes that row's prices and RefreshedAt.
func (s *OpportunityStore) UpsertOpportunity(ctx context.Context, opp domain.Opportunity) (domain.Opportunity, bool, error) {
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if opp.RefreshedAt.IsZero() {
		opp.RefreshedAt = opp.CreatedAt
	}
	query := `
		INSERT INTO opportunities (
			id, trading_pair_id, buy_exchange_id, sell_exchange_id,
			buy_price, sell_price, profit_margin, potential_profit,
			is_active, created_at, refreshed_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric, $8::numeric,
			TRUE, $9, $10
		)
		ON CONFLICT (trading_pair_id, buy_exchange_id, sell_exchange_id) WHERE is_active
		DO UPDATE SET
			buy_price        = EXCLUDED.buy_price,
			sell_price       = EXCLUDED.sell_price,
			profit_margin    = EXCLUDED.profit_margin,
			potential_profit = EXCLUDED.potential_profit,
			refreshed_at     = EXCLUDED.refreshed_at
		RETURNING ` + opportunitySelectCols + `, (xmax = 0) AS inserted`

	var stored domain.Opportunity
	var inserted bool
	dest := append(opportunityDest(&stored), &inserted)
	err := s.pool.QueryRow(ctx, query,
		opp.ID, opp.TradingPairID, opp.BuyExchangeID, opp.SellExchangeID,
		opp.BuyPrice, opp.SellPrice, opp.ProfitMargin, opp.PotentialProfit,
		opp.CreatedAt, opp.RefreshedAt,
	).Scan(dest...)
	if err != nil {
		return domain.Opportunity{}, false, fmt.Errorf("postgres: upsert opportunity %s: %w", opp.ID, err)
	}
	return stored, inserted, nil
}

// ClaimOpportunity flips is_active in a single conditional UPDATE so exactly
// one concurrent caller wins.
func (s *OpportunityStore) ClaimOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	query := `
		UPDATE opportunities SET is_active = FALSE
		WHERE id = $1 AND is_active
		RETURNING ` + opportunitySelectCols

	var o domain.Opportunity
	err := s.pool.QueryRow(ctx, query, id).Scan(opportunityDest(&o)...)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Opportunity{}, fmt.Errorf("postgres: claim opportunity %s: %w", id, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM opportunities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: claim opportunity %s: %w", id, err)
	}
	if exists {
		return domain.Opportunity{}, domain.ErrOpportunityInactive
	}
	return domain.Opportunity{}, domain.ErrNotFound
}

// ReleaseOpportunity reactivates a claimed opportunity unless another active
// opportunity already holds its route.
func (s *OpportunityStore) ReleaseOpportunity(ctx context.Context, id string) error {
	query := `
		UPDATE opportunities o SET is_active = TRUE
		WHERE o.id = $1 AND NOT o.is_active
		  AND NOT EXISTS (
			SELECT 1 FROM opportunities a
			WHERE a.is_active
			  AND a.trading_pair_id = o.trading_pair_id
			  AND a.buy_exchange_id = o.buy_exchange_id
			  AND a.sell_exchange_id = o.sell_exchange_id
		  )`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: release opportunity %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM opportunities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: release opportunity %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// DeactivateExpiredOpportunities deactivates active opportunities whose last
// refresh is at least ttl before now.
func (s *OpportunityStore) DeactivateExpiredOpportunities(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET is_active = FALSE WHERE is_active AND refreshed_at <= $1`,
		now.Add(-ttl),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate expired opportunities: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeactivateAllOpportunities deactivates every active opportunity.
func (s *OpportunityStore) DeactivateAllOpportunities(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE opportunities SET is_active = FALSE WHERE is_active`)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate all opportunities: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
