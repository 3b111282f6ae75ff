package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// SettingsStore implements domain.SettingsStore on the single-row bot_settings
// table.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

const settingsSelectCols = `min_profit_margin::text, max_position_size::text, slippage_tolerance::text,
	gas_limit, stop_loss::text, daily_loss_limit::text, auto_pause_on_loss, is_active, updated_at`

func scanSettings(row pgx.Row) (domain.BotSettings, error) {
	var s domain.BotSettings
	err := row.Scan(
		&s.MinProfitMargin, &s.MaxPositionSize, &s.SlippageTolerance,
		&s.GasLimit, &s.StopLoss, &s.DailyLossLimit, &s.AutoPauseOnLoss, &s.IsActive, &s.UpdatedAt,
	)
	return s, err
}

// GetSettings returns the bot settings row, or domain.ErrNotFound when absent.
func (s *SettingsStore) GetSettings(ctx context.Context) (domain.BotSettings, error) {
	got, err := scanSettings(s.pool.QueryRow(ctx, `SELECT `+settingsSelectCols+` FROM bot_settings WHERE id = 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BotSettings{}, domain.ErrNotFound
		}
		return domain.BotSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}
	return got, nil
}

// UpdateSettings locks the settings row, merges patch and writes the result in
// one transaction. A missing row is created from domain.LazySettings.
func (s *SettingsStore) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.BotSettings, error) {
	if err := patch.Validate(); err != nil {
		return domain.BotSettings{}, err
	}

	var merged domain.BotSettings
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		base, err := scanSettings(tx.QueryRow(ctx,
			`SELECT `+settingsSelectCols+` FROM bot_settings WHERE id = 1 FOR UPDATE`))
		if errors.Is(err, pgx.ErrNoRows) {
			base, err = domain.LazySettings(), nil
		}
		if err != nil {
			return err
		}
		merged, err = base.Apply(patch, time.Now().UTC())
		if err != nil {
			return err
		}
		return writeSettings(ctx, tx, merged)
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return domain.BotSettings{}, err
		}
		return domain.BotSettings{}, fmt.Errorf("postgres: update settings: %w", err)
	}
	return merged, nil
}

// InitSettings inserts init only when the row is absent.
func (s *SettingsStore) InitSettings(ctx context.Context, init domain.BotSettings) (bool, error) {
	if init.UpdatedAt.IsZero() {
		init.UpdatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO bot_settings (
			id, min_profit_margin, max_position_size, slippage_tolerance, gas_limit,
			stop_loss, daily_loss_limit, auto_pause_on_loss, is_active, updated_at
		) VALUES (1, $1::numeric, $2::numeric, $3::numeric, $4, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		init.MinProfitMargin, init.MaxPositionSize, init.SlippageTolerance, init.GasLimit,
		init.StopLoss, init.DailyLossLimit, init.AutoPauseOnLoss, init.IsActive, init.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: init settings: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func writeSettings(ctx context.Context, tx pgx.Tx, v domain.BotSettings) error {
	const query = `
		INSERT INTO bot_settings (
			id, min_profit_margin, max_position_size, slippage_tolerance, gas_limit,
			stop_loss, daily_loss_limit, auto_pause_on_loss, is_active, updated_at
		) VALUES (1, $1::numeric, $2::numeric, $3::numeric, $4, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			min_profit_margin  = EXCLUDED.min_profit_margin,
			max_position_size  = EXCLUDED.max_position_size,
			slippage_tolerance = EXCLUDED.slippage_tolerance,
			gas_limit          = EXCLUDED.gas_limit,
			stop_loss          = EXCLUDED.stop_loss,
			daily_loss_limit   = EXCLUDED.daily_loss_limit,
			auto_pause_on_loss = EXCLUDED.auto_pause_on_loss,
			is_active          = EXCLUDED.is_active,
			updated_at         = EXCLUDED.updated_at`
	_, err := tx.Exec(ctx, query,
		v.MinProfitMargin, v.MaxPositionSize, v.SlippageTolerance, v.GasLimit,
		v.StopLoss, v.DailyLossLimit, v.AutoPauseOnLoss, v.IsActive, v.UpdatedAt,
	)
	return err
}
