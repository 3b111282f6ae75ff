// Package executor turns active opportunities into ledger trades.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const (
	// DefaultBatchSize caps how many opportunities one automatic tick executes.
	DefaultBatchSize = 3
	// DefaultInterval is the automatic execution tick.
	DefaultInterval = 10 * time.Second

	lockTTL = 30 * time.Second
)

// Store is the slice of the market store the executor needs.
type Store interface {
	GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error)
	ListActiveOpportunities(ctx context.Context) ([]domain.Opportunity, error)
	ClaimOpportunity(ctx context.Context, id string) (domain.Opportunity, error)
	ReleaseOpportunity(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (domain.BotSettings, error)
	CreateTrade(ctx context.Context, t domain.Trade) (domain.Trade, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BatchResult is what one automatic tick achieved.
type BatchResult struct {
	Executed int
	Profit   decimal.Decimal
}

// Executor claims opportunities and records them as completed trades. The
// store's claim is the exclusivity guard; an optional LockManager extends it
// across processes.
type Executor struct {
	store     Store
	batchSize int
	now       func() time.Time
	logger    *slog.Logger

	locks    domain.LockManager
	bus      domain.SignalBus
	history  domain.PriceHistory
	notifier Notifier
}

// NewExecutor creates an Executor. A non-positive batchSize selects
// DefaultBatchSize.
func NewExecutor(store Store, batchSize int, now func() time.Time, logger *slog.Logger) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &Executor{
		store:     store,
		batchSize: batchSize,
		now:       now,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// SetLockManager enables the per-opportunity distributed lock.
func (e *Executor) SetLockManager(lm domain.LockManager) { e.locks = lm }

// SetSinks wires trade fan-out. Any argument may be nil.
func (e *Executor) SetSinks(bus domain.SignalBus, history domain.PriceHistory, notifier Notifier) {
	e.bus = bus
	e.history = history
	e.notifier = notifier
}

// RunBatch executes up to batchSize active opportunities, highest margin
// first. Ties keep store order. Per-item failures are logged and skipped;
// cancellation stops the remaining items.
func (e *Executor) RunBatch(ctx context.Context) (BatchResult, error) {
	res := BatchResult{Profit: decimal.Zero}

	settings, err := e.store.GetSettings(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("executor: load settings: %w", err)
	}
	if !settings.IsActive {
		return res, nil
	}

	opps, err := e.store.ListActiveOpportunities(ctx)
	if err != nil {
		return res, fmt.Errorf("executor: list opportunities: %w", err)
	}
	for _, opp := range SelectTop(opps, e.batchSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		trade, err := e.execute(ctx, opp, settings)
		if err != nil {
			e.logger.WarnContext(ctx, "execution skipped",
				slog.String("opportunity_id", opp.ID), slog.String("error", err.Error()))
			continue
		}
		res.Executed++
		res.Profit = res.Profit.Add(domain.Dec(trade.Profit))
	}
	return res, nil
}

// SelectTop returns the n opportunities with the highest margin. The sort is
// stable, so equal margins keep their input order.
func SelectTop(opps []domain.Opportunity, n int) []domain.Opportunity {
	sorted := make([]domain.Opportunity, len(opps))
	copy(sorted, opps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Margin().GreaterThan(sorted[j].Margin())
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ExecuteOne runs a manual execution of opportunity id.
//
// It returns domain.ErrNotFound when the opportunity is unknown,
// domain.ErrOpportunityInactive (which is also ErrNotFound) when it is no
// longer active or another execution wins, and domain.ErrBotInactive when the
// settings are absent or inactive.
func (e *Executor) ExecuteOne(ctx context.Context, id string) (domain.Trade, error) {
	opp, err := e.store.GetOpportunity(ctx, id)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: opportunity %s: %w", id, err)
	}
	if !opp.IsActive {
		return domain.Trade{}, fmt.Errorf("executor: opportunity %s: %w", id, domain.ErrOpportunityInactive)
	}

	settings, err := e.store.GetSettings(ctx)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !settings.IsActive) {
		return domain.Trade{}, domain.ErrBotInactive
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: load settings: %w", err)
	}
	return e.execute(ctx, opp, settings)
}

func (e *Executor) execute(ctx context.Context, opp domain.Opportunity, settings domain.BotSettings) (domain.Trade, error) {
	if !domain.Dec(opp.BuyPrice).IsPositive() {
		return domain.Trade{}, fmt.Errorf("executor: opportunity %s: %w",
			opp.ID, &domain.ValidationError{Field: "buyPrice", Reason: "must be greater than zero"})
	}
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "exec:opportunity:"+opp.ID, lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Trade{}, fmt.Errorf("executor: opportunity %s: %w: %w", opp.ID, domain.ErrOpportunityInactive, err)
		}
		if err != nil {
			return domain.Trade{}, fmt.Errorf("executor: lock opportunity %s: %w", opp.ID, err)
		}
		defer unlock()
	}

	// Once claimed, the opportunity and its trade record go through together;
	// a stop during the tick only takes effect between opportunities.
	ctx = context.WithoutCancel(ctx)

	claimed, err := e.store.ClaimOpportunity(ctx, opp.ID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: claim opportunity %s: %w", opp.ID, err)
	}

	amount := settings.MaxPosition().Div(domain.Dec(claimed.BuyPrice))

	trade, err := e.store.CreateTrade(ctx, domain.Trade{
		OpportunityID:  claimed.ID,
		TradingPairID:  claimed.TradingPairID,
		BuyExchangeID:  claimed.BuyExchangeID,
		SellExchangeID: claimed.SellExchangeID,
		BuyPrice:       claimed.BuyPrice,
		SellPrice:      claimed.SellPrice,
		Amount:         domain.FormatPrice(amount),
		Profit:         domain.FormatPrice(domain.Dec(claimed.PotentialProfit)),
		Status:         domain.TradeStatusCompleted,
		ExecutedAt:     e.now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "trade record failed after claim",
			slog.String("opportunity_id", claimed.ID), slog.String("error", err.Error()))
		if rerr := e.store.ReleaseOpportunity(ctx, claimed.ID); rerr != nil {
			e.logger.ErrorContext(ctx, "opportunity release failed",
				slog.String("opportunity_id", claimed.ID), slog.String("error", rerr.Error()))
		}
		return domain.Trade{}, fmt.Errorf("executor: record trade for %s: %w", claimed.ID, err)
	}

	e.logger.InfoContext(ctx, "trade executed",
		slog.String("trade_id", trade.ID),
		slog.String("opportunity_id", claimed.ID),
		slog.String("amount", trade.Amount),
		slog.String("profit", trade.Profit),
	)
	e.fanOut(ctx, trade)
	return trade, nil
}

func (e *Executor) fanOut(ctx context.Context, trade domain.Trade) {
	if e.history != nil {
		if err := e.history.RecordTrade(ctx, trade); err != nil {
			e.logger.WarnContext(ctx, "trade history write failed", slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		payload, err := json.Marshal(trade)
		if err == nil {
			err = e.bus.Publish(ctx, domain.ChannelTrades, payload)
		}
		if err == nil {
			err = e.bus.StreamAppend(ctx, domain.StreamTrades, payload)
		}
		if err != nil {
			e.logger.WarnContext(ctx, "trade publish failed", slog.String("error", err.Error()))
		}
	}
	if e.notifier != nil {
		msg := fmt.Sprintf("Trade %s: bought at %s, sold at %s, amount %s, profit %s",
			trade.ID, trade.BuyPrice, trade.SellPrice, trade.Amount, trade.Profit)
		if err := e.notifier.Notify(ctx, "trade_executed", "Trade executed", msg); err != nil {
			e.logger.WarnContext(ctx, "trade notification failed", slog.String("error", err.Error()))
		}
	}
}
