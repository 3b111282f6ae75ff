// Package service holds the bot controller and the read models served to the
// API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/executor"
	"github.com/alanyoungcy/arbbot/internal/schedule"
)

// EmergencyStopMessage is returned by a successful EmergencyStop.
const EmergencyStopMessage = "Emergency stop executed successfully"

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BotService owns the stopped/running/paused lifecycle and the automatic
// execution ticker.
//
// ctl serializes lifecycle transitions and may be held while waiting for an
// in-flight batch; mu guards the runtime counters and is never held across
// store calls. A batch only credits its result when the generation it
// started under is still current, so a batch that outlives a stop cannot
// leak into the next run.
type BotService struct {
	store    domain.MarketStore
	exec     *executor.Executor
	task     *schedule.Task
	now      func() time.Time
	logger   *slog.Logger
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier Notifier

	ctl sync.Mutex

	mu         sync.Mutex
	state      domain.BotState
	startTime  *time.Time
	trades     int
	profit     decimal.Decimal
	activePair int
	gen        uint64
}

// NewBotService creates a stopped controller that executes through exec every
// interval while running.
func NewBotService(store domain.MarketStore, exec *executor.Executor, interval time.Duration, now func() time.Time, logger *slog.Logger) *BotService {
	if interval <= 0 {
		interval = executor.DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	s := &BotService{
		store:  store,
		exec:   exec,
		now:    now,
		logger: logger.With(slog.String("component", "bot_service")),
		state:  domain.BotStopped,
		profit: decimal.Zero,
	}
	s.task = schedule.NewTask("executor", interval, s.tick, logger)
	return s
}

// SetHooks wires lifecycle side channels. Any argument may be nil.
func (s *BotService) SetHooks(audit domain.AuditStore, bus domain.SignalBus, notifier Notifier) {
	s.audit = audit
	s.bus = bus
	s.notifier = notifier
}

// Start moves a stopped or paused bot to running. It requires settings,
// resets the counters and stamps StartTime. Starting a running bot changes
// nothing.
func (s *BotService) Start(ctx context.Context) (domain.BotRuntimeStatus, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	prev := s.State()
	if prev == domain.BotRunning {
		return s.Runtime(), nil
	}

	if _, err := s.store.GetSettings(ctx); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.Runtime(), domain.ErrConfiguration
		}
		return s.Runtime(), fmt.Errorf("bot_service: load settings: %w", err)
	}
	if err := s.setActive(ctx, true); err != nil {
		return s.Runtime(), err
	}

	s.mu.Lock()
	now := s.now()
	s.startTime = &now
	s.trades, s.profit, s.activePair = 0, decimal.Zero, 0
	s.gen++
	s.state = domain.BotRunning
	s.mu.Unlock()

	s.task.Start(context.WithoutCancel(ctx))

	event := "bot_started"
	if prev == domain.BotPaused {
		event = "bot_resumed"
	}
	st := s.Runtime()
	s.announce(ctx, event, "Bot started", "Automatic execution is running.", st)
	return st, nil
}

// Pause stops automatic execution and keeps the counters. It only acts on a
// running bot.
func (s *BotService) Pause(ctx context.Context) (domain.BotRuntimeStatus, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.State() != domain.BotRunning {
		return s.Runtime(), nil
	}

	s.task.Stop()
	s.mu.Lock()
	s.state = domain.BotPaused
	s.mu.Unlock()

	if err := s.setActive(ctx, false); err != nil {
		return s.Runtime(), err
	}
	st := s.Runtime()
	s.announce(ctx, "bot_paused", "Bot paused", "Automatic execution is paused.", st)
	return st, nil
}

// Stop halts automatic execution, waiting for an in-flight batch, and resets
// the runtime counters. Stopping a stopped bot changes nothing.
func (s *BotService) Stop(ctx context.Context) (domain.BotRuntimeStatus, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.State() == domain.BotStopped {
		return s.Runtime(), nil
	}

	s.task.Stop()
	s.reset()
	if err := s.setActive(ctx, false); err != nil {
		return s.Runtime(), err
	}
	st := s.Runtime()
	s.announce(ctx, "bot_stopped", "Bot stopped", "Automatic execution is stopped.", st)
	return st, nil
}

// EmergencyStop cancels automatic execution without waiting, resets the
// runtime counters and deactivates every active opportunity.
func (s *BotService) EmergencyStop(ctx context.Context) (string, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.task.Cancel()
	s.reset()
	if err := s.setActive(ctx, false); err != nil {
		return "", err
	}
	n, err := s.store.DeactivateAllOpportunities(ctx)
	if err != nil {
		return "", fmt.Errorf("bot_service: deactivate opportunities: %w", err)
	}

	s.logger.WarnContext(ctx, "emergency stop", slog.Int("deactivated", n))
	s.announce(ctx, "emergency_stop", "Emergency stop",
		fmt.Sprintf("All operations halted; %d opportunities deactivated.", n), s.Runtime())
	return EmergencyStopMessage, nil
}

// State returns the current lifecycle state.
func (s *BotService) State() domain.BotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Runtime returns a snapshot of the runtime status.
func (s *BotService) Runtime() domain.BotRuntimeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.BotRuntimeStatus{
		IsActive:       s.state == domain.BotRunning,
		Status:         s.state,
		TradesExecuted: s.trades,
		TotalProfit:    s.profit,
		ActivePairs:    s.activePair,
	}
	if s.startTime != nil {
		t := *s.startTime
		st.StartTime = &t
	}
	return st
}

// Status recomputes the ledger metrics from the last 100 trades and merges
// them with the runtime snapshot.
func (s *BotService) Status(ctx context.Context) (domain.BotStatusReport, error) {
	trades, err := s.store.ListRecentTrades(ctx, statusWindow)
	if err != nil {
		return domain.BotStatusReport{}, fmt.Errorf("bot_service: list trades: %w", err)
	}
	m := ComputeMetrics(trades, s.now())
	return domain.BotStatusReport{
		BotRuntimeStatus: s.Runtime(),
		DailyProfit:      m.DailyProfit,
		DailyVolume:      m.DailyVolume,
		SuccessRate:      m.SuccessRate,
		TotalTrades:      m.TotalTrades,
	}, nil
}

// Settings returns domain.ErrNotFound until settings exist.
func (s *BotService) Settings(ctx context.Context) (domain.BotSettings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateSettings merges patch into the settings, creating them on first
// write. Malformed fields fail with *domain.ValidationError.
func (s *BotService) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.BotSettings, error) {
	updated, err := s.store.UpdateSettings(ctx, patch)
	if err != nil {
		return domain.BotSettings{}, err
	}
	s.auditLog(ctx, "settings_updated", map[string]any{
		"min_profit_margin": updated.MinProfitMargin,
		"max_position_size": updated.MaxPositionSize,
		"is_active":         updated.IsActive,
	})
	return updated, nil
}

// ExecuteOpportunity runs a manual execution. Manual trades land in the
// ledger but do not count toward the runtime counters.
func (s *BotService) ExecuteOpportunity(ctx context.Context, id string) (domain.Trade, error) {
	return s.exec.ExecuteOne(ctx, id)
}

// Shutdown stops the ticker, waiting for an in-flight batch.
func (s *BotService) Shutdown() {
	s.task.Stop()
}

func (s *BotService) tick(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	res, err := s.exec.RunBatch(ctx)
	pairs, pairErr := s.store.ListActiveTradingPairs(ctx)

	s.mu.Lock()
	if s.gen == gen {
		s.trades += res.Executed
		s.profit = s.profit.Add(res.Profit)
		if pairErr == nil {
			s.activePair = len(pairs)
		}
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if pairErr != nil {
		return fmt.Errorf("bot_service: list trading pairs: %w", pairErr)
	}
	if res.Executed > 0 {
		s.publishStatus(ctx, s.Runtime())
	}
	return nil
}

func (s *BotService) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.BotStopped
	s.startTime = nil
	s.trades, s.profit, s.activePair = 0, decimal.Zero, 0
	s.gen++
}

// setActive persists the settings activity flag the executor checks. Absent
// settings are left absent.
func (s *BotService) setActive(ctx context.Context, active bool) error {
	cur, err := s.store.GetSettings(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bot_service: load settings: %w", err)
	}
	if cur.IsActive == active {
		return nil
	}
	if _, err := s.store.UpdateSettings(ctx, domain.SettingsPatch{IsActive: &active}); err != nil {
		return fmt.Errorf("bot_service: update settings: %w", err)
	}
	return nil
}

func (s *BotService) announce(ctx context.Context, event, title, message string, st domain.BotRuntimeStatus) {
	s.logger.InfoContext(ctx, title, slog.String("event", event), slog.String("status", string(st.Status)))
	s.auditLog(ctx, event, map[string]any{"status": string(st.Status)})
	s.publishStatus(ctx, st)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
}

func (s *BotService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (s *BotService) publishStatus(ctx context.Context, st domain.BotRuntimeStatus) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(st)
	if err == nil {
		err = s.bus.Publish(ctx, domain.ChannelBotStatus, payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "status publish failed", slog.String("error", err.Error()))
	}
}
