package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Route identifies one arbitrage direction. At most one active opportunity
// exists per route.
type Route struct {
	TradingPairID  string `json:"tradingPairId"`
	BuyExchangeID  string `json:"buyExchangeId"`
	SellExchangeID string `json:"sellExchangeId"`
}

// Opportunity is a detected cross-exchange spread. Prices and profit carry 8
// fractional digits, the margin 4.
type Opportunity struct {
	ID              string    `json:"id"`
	TradingPairID   string    `json:"tradingPairId"`
	BuyExchangeID   string    `json:"buyExchangeId"`
	SellExchangeID  string    `json:"sellExchangeId"`
	BuyPrice        string    `json:"buyPrice"`
	SellPrice       string    `json:"sellPrice"`
	ProfitMargin    string    `json:"profitMargin"`
	PotentialProfit string    `json:"potentialProfit"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	RefreshedAt     time.Time `json:"refreshedAt"`
}

// Route returns the opportunity's route key.
func (o Opportunity) Route() Route {
	return Route{
		TradingPairID:  o.TradingPairID,
		BuyExchangeID:  o.BuyExchangeID,
		SellExchangeID: o.SellExchangeID,
	}
}

// Margin returns ProfitMargin as a decimal for ranking.
func (o Opportunity) Margin() decimal.Decimal {
	return Dec(o.ProfitMargin)
}

// Expired reports whether the opportunity has gone unrefreshed for at least ttl.
func (o Opportunity) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(o.RefreshedAt) >= ttl
}

// OpportunityDetail is an opportunity with its pair and both exchanges resolved.
type OpportunityDetail struct {
	Opportunity
	TradingPair  TradingPair `json:"tradingPair"`
	BuyExchange  Exchange    `json:"buyExchange"`
	SellExchange Exchange    `json:"sellExchange"`
}
