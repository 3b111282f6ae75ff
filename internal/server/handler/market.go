package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// MarketReader is the read side the market endpoints serve.
type MarketReader interface {
	Exchanges(ctx context.Context) ([]domain.Exchange, error)
	TradingPairs(ctx context.Context) ([]domain.TradingPair, error)
	LatestPrices(ctx context.Context) ([]domain.PriceQuoteDetail, error)
	Quote(ctx context.Context, exchangeID, tradingPairID string) (domain.PriceQuote, error)
	ActiveOpportunities(ctx context.Context) ([]domain.OpportunityDetail, error)
	RecentTrades(ctx context.Context, limit int) ([]domain.TradeDetail, error)
	AllTrades(ctx context.Context) ([]domain.TradeDetail, error)
}

// MarketHandler serves reference data, quotes, opportunities and trades.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger.With(slog.String("handler", "market"))}
}

// GET /api/exchanges
func (h *MarketHandler) Exchanges(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.Exchanges(r.Context())
	h.respond(w, r, "list exchanges", out, err)
}

// GET /api/trading-pairs
func (h *MarketHandler) TradingPairs(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.TradingPairs(r.Context())
	h.respond(w, r, "list trading pairs", out, err)
}

// GET /api/prices
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.LatestPrices(r.Context())
	h.respond(w, r, "list prices", out, err)
}

// GET /api/prices/{tradingPairId}/{exchangeId}
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.markets.Quote(r.Context(), r.PathValue("exchangeId"), r.PathValue("tradingPairId"))
	h.respond(w, r, "get quote", q, err)
}

// GET /api/opportunities
func (h *MarketHandler) Opportunities(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.ActiveOpportunities(r.Context())
	h.respond(w, r, "list opportunities", out, err)
}

// Trades returns the newest trades. Without ?limit= the service default
// applies.
// GET /api/trades?limit=10
func (h *MarketHandler) Trades(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.RecentTrades(r.Context(), queryInt(r, "limit", 0))
	h.respond(w, r, "list trades", out, err)
}

// GET /api/trades/all
func (h *MarketHandler) AllTrades(w http.ResponseWriter, r *http.Request) {
	out, err := h.markets.AllTrades(r.Context())
	h.respond(w, r, "list all trades", out, err)
}

func (h *MarketHandler) respond(w http.ResponseWriter, r *http.Request, op string, v any, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
