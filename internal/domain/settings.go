package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BotSettings is the singleton bot configuration. Decimal fields are stored as
// strings exactly as configured.
type BotSettings struct {
	MinProfitMargin   string    `json:"minProfitMargin"`
	MaxPositionSize   string    `json:"maxPositionSize"`
	SlippageTolerance string    `json:"slippageTolerance"`
	GasLimit          int64     `json:"gasLimit"`
	StopLoss          string    `json:"stopLoss"`
	DailyLossLimit    string    `json:"dailyLossLimit"`
	AutoPauseOnLoss   bool      `json:"autoPauseOnLoss"`
	IsActive          bool      `json:"isActive"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MinMargin returns MinProfitMargin as a decimal.
func (s BotSettings) MinMargin() decimal.Decimal { return Dec(s.MinProfitMargin) }

// MaxPosition returns MaxPositionSize as a decimal.
func (s BotSettings) MaxPosition() decimal.Decimal { return Dec(s.MaxPositionSize) }

// SeedSettings are written when a fresh store is bootstrapped.
func SeedSettings() BotSettings {
	return BotSettings{
		MinProfitMargin:   "0.25",
		MaxPositionSize:   "5000",
		SlippageTolerance: "0.5",
		GasLimit:          500000,
		StopLoss:          "2.0",
		DailyLossLimit:    "1000",
		AutoPauseOnLoss:   true,
		IsActive:          false,
	}
}

// LazySettings is the base a partial update is merged into when no settings
// row exists yet.
func LazySettings() BotSettings {
	return BotSettings{
		MinProfitMargin:   "0.5",
		MaxPositionSize:   "1000",
		SlippageTolerance: "0.1",
		GasLimit:          21000,
		StopLoss:          "5.0",
		DailyLossLimit:    "100",
		AutoPauseOnLoss:   false,
		IsActive:          true,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	MinProfitMargin   *string `json:"minProfitMargin,omitempty"`
	MaxPositionSize   *string `json:"maxPositionSize,omitempty"`
	SlippageTolerance *string `json:"slippageTolerance,omitempty"`
	GasLimit          *int64  `json:"gasLimit,omitempty"`
	StopLoss          *string `json:"stopLoss,omitempty"`
	DailyLossLimit    *string `json:"dailyLossLimit,omitempty"`
	AutoPauseOnLoss   *bool   `json:"autoPauseOnLoss,omitempty"`
	IsActive          *bool   `json:"isActive,omitempty"`
}

// Validate checks every populated field and joins all problems. Each problem
// is a *ValidationError.
func (p SettingsPatch) Validate() error {
	var errs []error
	checkDec := func(field string, v *string, positive bool) {
		if v == nil {
			return
		}
		d, err := ParseDecimal(field, *v)
		if err != nil {
			errs = append(errs, err)
			return
		}
		if d.IsNegative() {
			errs = append(errs, &ValidationError{Field: field, Reason: "must not be negative"})
			return
		}
		if positive && d.IsZero() {
			errs = append(errs, &ValidationError{Field: field, Reason: "must be greater than zero"})
		}
	}

	checkDec("minProfitMargin", p.MinProfitMargin, false)
	checkDec("maxPositionSize", p.MaxPositionSize, true)
	checkDec("slippageTolerance", p.SlippageTolerance, false)
	checkDec("stopLoss", p.StopLoss, false)
	checkDec("dailyLossLimit", p.DailyLossLimit, false)
	if p.GasLimit != nil && *p.GasLimit <= 0 {
		errs = append(errs, &ValidationError{Field: "gasLimit", Reason: "must be greater than zero"})
	}
	return errors.Join(errs...)
}

// Apply validates p and merges it over s, stamping UpdatedAt.
func (s BotSettings) Apply(p SettingsPatch, now time.Time) (BotSettings, error) {
	if err := p.Validate(); err != nil {
		return s, err
	}
	if p.MinProfitMargin != nil {
		s.MinProfitMargin = *p.MinProfitMargin
	}
	if p.MaxPositionSize != nil {
		s.MaxPositionSize = *p.MaxPositionSize
	}
	if p.SlippageTolerance != nil {
		s.SlippageTolerance = *p.SlippageTolerance
	}
	if p.GasLimit != nil {
		s.GasLimit = *p.GasLimit
	}
	if p.StopLoss != nil {
		s.StopLoss = *p.StopLoss
	}
	if p.DailyLossLimit != nil {
		s.DailyLossLimit = *p.DailyLossLimit
	}
	if p.AutoPauseOnLoss != nil {
		s.AutoPauseOnLoss = *p.AutoPauseOnLoss
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	s.UpdatedAt = now
	return s, nil
}

// BotState is the run state of the bot controller.
type BotState string

const (
	BotStopped BotState = "stopped"
	BotRunning BotState = "running"
	BotPaused  BotState = "paused"
)

// BotRuntimeStatus is derived state held by the controller, never persisted.
type BotRuntimeStatus struct {
	IsActive       bool            `json:"isActive"`
	Status         BotState        `json:"status"`
	StartTime      *time.Time      `json:"startTime"`
	TradesExecuted int             `json:"tradesExecuted"`
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	ActivePairs    int             `json:"activePairs"`
}

// BotStatusReport adds the ledger-derived metrics to the runtime status.
type BotStatusReport struct {
	BotRuntimeStatus
	DailyProfit decimal.Decimal `json:"dailyProfit"`
	DailyVolume decimal.Decimal `json:"dailyVolume"`
	SuccessRate float64         `json:"successRate"`
	TotalTrades int             `json:"totalTrades"`
}
