package domain

import "time"

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
)

// Trade is an append-only ledger entry. OpportunityID is empty for manual
// trades that were not tied to a detected opportunity.
type Trade struct {
	ID             string      `json:"id"`
	OpportunityID  string      `json:"opportunityId,omitempty"`
	TradingPairID  string      `json:"tradingPairId"`
	BuyExchangeID  string      `json:"buyExchangeId"`
	SellExchangeID string      `json:"sellExchangeId"`
	BuyPrice       string      `json:"buyPrice"`
	SellPrice      string      `json:"sellPrice"`
	Amount         string      `json:"amount"`
	Profit         string      `json:"profit"`
	Status         TradeStatus `json:"status"`
	ExecutedAt     time.Time   `json:"executedAt"`
}

// TradeDetail is a trade with its pair and both exchanges resolved.
type TradeDetail struct {
	Trade
	TradingPair  TradingPair `json:"tradingPair"`
	BuyExchange  Exchange    `json:"buyExchange"`
	SellExchange Exchange    `json:"sellExchange"`
}
