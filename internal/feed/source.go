// Package feed generates the latest quote for every active (exchange, pair)
// on a fixed tick.
package feed

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// RandomSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Sample is one synthesized market observation.
type Sample struct {
	Price     decimal.Decimal
	Volume24h decimal.Decimal
	Change24h decimal.Decimal
}

// PriceSource produces a sample for an exchange and pair.
type PriceSource interface {
	Sample(ex domain.Exchange, pair domain.TradingPair) (Sample, error)
}

// SymbolConfig sets the reference price of a symbol.
type SymbolConfig struct {
	Symbol    string  `toml:"symbol"`
	BasePrice float64 `toml:"base_price"`
}

// ExchangeConfig sets the price skew and volume baseline of an exchange.
type ExchangeConfig struct {
	Name   string  `toml:"name"`
	Skew   float64 `toml:"skew"`
	Volume float64 `toml:"volume"`
}

// Tables parameterize SimulatedSource. Unknown symbols and exchanges fall back
// to the defaults.
type Tables struct {
	Symbols       []SymbolConfig
	Exchanges     []ExchangeConfig
	DefaultBase   float64
	DefaultSkew   float64
	DefaultVolume float64
}

// DefaultTables returns the built-in market model.
func DefaultTables() Tables {
	return Tables{
		Symbols: []SymbolConfig{
			{Symbol: "ETH/USDT", BasePrice: 2845},
			{Symbol: "BTC/USDT", BasePrice: 43150},
			{Symbol: "LINK/USDT", BasePrice: 14.68},
		},
		Exchanges: []ExchangeConfig{
			{Name: "Binance", Skew: 1.0, Volume: 125_000_000},
			{Name: "Coinbase Pro", Skew: 0.9995, Volume: 98_000_000},
			{Name: "Kraken", Skew: 1.0008, Volume: 67_000_000},
			{Name: "Uniswap V3", Skew: 0.9992, Volume: 45_000_000},
		},
		DefaultBase:   100,
		DefaultSkew:   1.0,
		DefaultVolume: 50_000_000,
	}
}

var (
	jitterSpan = decimal.RequireFromString("0.002")
	half       = decimal.RequireFromString("0.5")
	volFloor   = decimal.RequireFromString("0.8")
	volSpan    = decimal.RequireFromString("0.4")
	changeSpan = decimal.NewFromInt(10)
)

// SimulatedSource models each exchange as a skewed, jittered copy of a
// reference price:
//
//	price  = base × skew × (1 + (r−0.5)×0.002)
//	volume = baseline × (0.8 + r×0.4)
//	change = (r−0.5)×10
type SimulatedSource struct {
	mu  sync.Mutex
	rnd RandomSource

	bases   map[string]decimal.Decimal
	skews   map[string]decimal.Decimal
	volumes map[string]decimal.Decimal
	defBase decimal.Decimal
	defSkew decimal.Decimal
	defVol  decimal.Decimal
}

// NewSimulatedSource builds a source over t. A nil rnd uses a time-seeded
// generator.
func NewSimulatedSource(t Tables, rnd RandomSource) *SimulatedSource {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	def := DefaultTables()
	if t.DefaultBase <= 0 {
		t.DefaultBase = def.DefaultBase
	}
	if t.DefaultSkew <= 0 {
		t.DefaultSkew = def.DefaultSkew
	}
	if t.DefaultVolume <= 0 {
		t.DefaultVolume = def.DefaultVolume
	}

	s := &SimulatedSource{
		rnd:     rnd,
		bases:   make(map[string]decimal.Decimal, len(t.Symbols)),
		skews:   make(map[string]decimal.Decimal, len(t.Exchanges)),
		volumes: make(map[string]decimal.Decimal, len(t.Exchanges)),
		defBase: decimal.NewFromFloat(t.DefaultBase),
		defSkew: decimal.NewFromFloat(t.DefaultSkew),
		defVol:  decimal.NewFromFloat(t.DefaultVolume),
	}
	for _, sym := range t.Symbols {
		s.bases[sym.Symbol] = decimal.NewFromFloat(sym.BasePrice)
	}
	for _, ex := range t.Exchanges {
		if ex.Skew > 0 {
			s.skews[ex.Name] = decimal.NewFromFloat(ex.Skew)
		}
		if ex.Volume > 0 {
			s.volumes[ex.Name] = decimal.NewFromFloat(ex.Volume)
		}
	}
	return s
}

func (s *SimulatedSource) Sample(ex domain.Exchange, pair domain.TradingPair) (Sample, error) {
	base, ok := s.bases[pair.Symbol]
	if !ok {
		base = s.defBase
	}
	skew, ok := s.skews[ex.Name]
	if !ok {
		skew = s.defSkew
	}
	vol, ok := s.volumes[ex.Name]
	if !ok {
		vol = s.defVol
	}

	s.mu.Lock()
	r1, r2, r3 := s.draw(), s.draw(), s.draw()
	s.mu.Unlock()

	jitter := decimal.NewFromInt(1).Add(r1.Sub(half).Mul(jitterSpan))
	return Sample{
		Price:     base.Mul(skew).Mul(jitter),
		Volume24h: vol.Mul(volFloor.Add(r2.Mul(volSpan))),
		Change24h: r3.Sub(half).Mul(changeSpan),
	}, nil
}

func (s *SimulatedSource) draw() decimal.Decimal {
	return decimal.NewFromFloat(s.rnd.Float64())
}

// Quote formats a sample as a stored quote.
func (smp Sample) Quote() domain.PriceQuote {
	return domain.PriceQuote{
		Price:     domain.FormatPrice(smp.Price),
		Volume24h: domain.FormatPrice(smp.Volume24h),
		Change24h: smp.Change24h.StringFixed(domain.ChangeScale),
	}
}
