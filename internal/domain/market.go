package domain

import "time"

// Exchange is a venue prices are quoted on. Only IsActive changes after
// creation.
type Exchange struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// TradingPair is a symbol such as "ETH/USDT".
type TradingPair struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	IsActive   bool   `json:"isActive"`
}

// PriceQuote is the latest price for one (exchange, pair). There is at most
// one quote per combination; upserts replace it in place.
type PriceQuote struct {
	ID            string    `json:"id"`
	ExchangeID    string    `json:"exchangeId"`
	TradingPairID string    `json:"tradingPairId"`
	Price         string    `json:"price"`
	Volume24h     string    `json:"volume24h"`
	Change24h     string    `json:"change24h,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PriceQuoteDetail is a quote with its exchange and pair resolved.
type PriceQuoteDetail struct {
	PriceQuote
	Exchange    Exchange    `json:"exchange"`
	TradingPair TradingPair `json:"tradingPair"`
}
