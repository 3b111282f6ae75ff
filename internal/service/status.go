package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// statusWindow is how many recent trades the derived metrics cover.
const statusWindow = 100

// LedgerMetrics are the figures derived from the recent trade window.
type LedgerMetrics struct {
	DailyProfit decimal.Decimal
	DailyVolume decimal.Decimal
	SuccessRate float64
	TotalTrades int
}

// ComputeMetrics derives daily figures from trades. "Today" starts at local
// midnight in now's location. Daily sums cover completed trades only; a trade
// counts as a success when it completed with a positive profit.
func ComputeMetrics(trades []domain.Trade, now time.Time) LedgerMetrics {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	out := LedgerMetrics{
		DailyProfit: decimal.Zero,
		DailyVolume: decimal.Zero,
		TotalTrades: len(trades),
	}
	successes := 0
	for _, t := range trades {
		if t.Status != domain.TradeStatusCompleted {
			continue
		}
		profit := domain.Dec(t.Profit)
		if profit.IsPositive() {
			successes++
		}
		if t.ExecutedAt.Before(midnight) {
			continue
		}
		out.DailyProfit = out.DailyProfit.Add(profit)
		out.DailyVolume = out.DailyVolume.Add(domain.Dec(t.Amount).Mul(domain.Dec(t.BuyPrice)))
	}
	if len(trades) > 0 {
		out.SuccessRate = float64(successes) / float64(len(trades)) * 100
	}
	return out
}
