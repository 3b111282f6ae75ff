// Package server exposes the bot over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
	"github.com/alanyoungcy/arbbot/internal/server/middleware"
	"github.com/alanyoungcy/arbbot/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr        string
	CORSOrigins []string
	// APIKey enables authentication when set.
	APIKey string
	// RateLimit is the per-IP request budget per RateWindow. Zero disables
	// limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers groups the endpoint handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Bot     *handler.BotHandler
	Markets *handler.MarketHandler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// hub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("POST /api/bot/start", handlers.Bot.Start)
	mux.HandleFunc("POST /api/bot/pause", handlers.Bot.Pause)
	mux.HandleFunc("POST /api/bot/stop", handlers.Bot.Stop)
	mux.HandleFunc("POST /api/bot/emergency-stop", handlers.Bot.EmergencyStop)
	mux.HandleFunc("GET /api/bot/status", handlers.Bot.Status)
	mux.HandleFunc("GET /api/bot/settings", handlers.Bot.GetSettings)
	mux.HandleFunc("POST /api/bot/settings", handlers.Bot.UpdateSettings)

	mux.HandleFunc("GET /api/exchanges", handlers.Markets.Exchanges)
	mux.HandleFunc("GET /api/trading-pairs", handlers.Markets.TradingPairs)
	mux.HandleFunc("GET /api/prices", handlers.Markets.Prices)
	mux.HandleFunc("GET /api/prices/{tradingPairId}/{exchangeId}", handlers.Markets.Quote)

	mux.HandleFunc("GET /api/opportunities", handlers.Markets.Opportunities)
	mux.HandleFunc("POST /api/opportunities/{id}/execute", handlers.Bot.ExecuteOpportunity)

	mux.HandleFunc("GET /api/trades", handlers.Markets.Trades)
	mux.HandleFunc("GET /api/trades/all", handlers.Markets.AllTrades)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
