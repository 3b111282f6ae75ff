// Package arbitrage finds cross-exchange price spreads and records them as
// opportunities.
package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Spread is the evaluation of two quotes for the same pair. Buy is always the
// cheaper side.
type Spread struct {
	Buy             domain.PriceQuote
	Sell            domain.PriceQuote
	BuyPrice        decimal.Decimal
	SellPrice       decimal.Decimal
	Margin          decimal.Decimal
	PotentialProfit decimal.Decimal
}

// Evaluate orders a and b by price and computes the spread. ok is false when
// the prices are equal or the buy price is not positive.
//
//	margin          = (sell − buy) / buy × 100
//	potentialProfit = (sell − buy) × (maxPosition / buy)
func Evaluate(a, b domain.PriceQuote, maxPosition decimal.Decimal) (Spread, bool) {
	pa, pb := domain.Dec(a.Price), domain.Dec(b.Price)
	if pa.Equal(pb) {
		return Spread{}, false
	}
	s := Spread{Buy: a, Sell: b, BuyPrice: pa, SellPrice: pb}
	if pb.LessThan(pa) {
		s = Spread{Buy: b, Sell: a, BuyPrice: pb, SellPrice: pa}
	}
	if !s.BuyPrice.IsPositive() {
		return Spread{}, false
	}
	diff := s.SellPrice.Sub(s.BuyPrice)
	s.Margin = diff.Div(s.BuyPrice).Mul(hundred)
	s.PotentialProfit = diff.Mul(maxPosition.Div(s.BuyPrice))
	return s, true
}

// Exceeds reports whether the margin is strictly above minMargin.
func (s Spread) Exceeds(minMargin decimal.Decimal) bool {
	return s.Margin.GreaterThan(minMargin)
}

// Opportunity renders the spread for storage.
func (s Spread) Opportunity(tradingPairID string) domain.Opportunity {
	return domain.Opportunity{
		TradingPairID:   tradingPairID,
		BuyExchangeID:   s.Buy.ExchangeID,
		SellExchangeID:  s.Sell.ExchangeID,
		BuyPrice:        domain.FormatPrice(s.BuyPrice),
		SellPrice:       domain.FormatPrice(s.SellPrice),
		ProfitMargin:    domain.FormatMargin(s.Margin),
		PotentialProfit: domain.FormatPrice(s.PotentialProfit),
	}
}
