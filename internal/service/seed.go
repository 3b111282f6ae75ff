package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// SeedData is the reference data a fresh store starts with.
type SeedData struct {
	Exchanges []string
	Pairs     []string
	Settings  domain.BotSettings
}

// DefaultSeed returns four exchanges, three pairs and the seed settings.
func DefaultSeed() SeedData {
	return SeedData{
		Exchanges: []string{"Binance", "Coinbase Pro", "Kraken", "Uniswap V3"},
		Pairs:     []string{"ETH/USDT", "BTC/USDT", "LINK/USDT"},
		Settings:  domain.SeedSettings(),
	}
}

// Bootstrap creates whatever part of seed is missing. Exchanges and pairs
// are matched by name and symbol, and settings are only written when absent,
// so running it again changes nothing.
func Bootstrap(ctx context.Context, store domain.MarketStore, seed SeedData, logger *slog.Logger) error {
	exchanges, err := store.ListExchanges(ctx)
	if err != nil {
		return fmt.Errorf("seed: list exchanges: %w", err)
	}
	haveEx := make(map[string]bool, len(exchanges))
	for _, ex := range exchanges {
		haveEx[ex.Name] = true
	}
	for _, name := range seed.Exchanges {
		if haveEx[name] {
			continue
		}
		if _, err := store.CreateExchange(ctx, domain.Exchange{Name: name, IsActive: true}); err != nil {
			return fmt.Errorf("seed: create exchange %s: %w", name, err)
		}
		logger.InfoContext(ctx, "seeded exchange", slog.String("name", name))
	}

	pairs, err := store.ListTradingPairs(ctx)
	if err != nil {
		return fmt.Errorf("seed: list trading pairs: %w", err)
	}
	havePair := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		havePair[p.Symbol] = true
	}
	for _, symbol := range seed.Pairs {
		if havePair[symbol] {
			continue
		}
		base, quote, ok := strings.Cut(symbol, "/")
		if !ok {
			return fmt.Errorf("seed: trading pair %q: %w", symbol,
				&domain.ValidationError{Field: "symbol", Reason: "must be BASE/QUOTE"})
		}
		pair := domain.TradingPair{Symbol: symbol, BaseAsset: base, QuoteAsset: quote, IsActive: true}
		if _, err := store.CreateTradingPair(ctx, pair); err != nil {
			return fmt.Errorf("seed: create trading pair %s: %w", symbol, err)
		}
		logger.InfoContext(ctx, "seeded trading pair", slog.String("symbol", symbol))
	}

	wrote, err := store.InitSettings(ctx, seed.Settings)
	if err != nil {
		return fmt.Errorf("seed: settings: %w", err)
	}
	if wrote {
		logger.InfoContext(ctx, "seeded bot settings")
	}
	return nil
}
