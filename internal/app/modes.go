package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbbot/internal/arbitrage"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/executor"
	"github.com/alanyoungcy/arbbot/internal/feed"
	"github.com/alanyoungcy/arbbot/internal/server"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
	"github.com/alanyoungcy/arbbot/internal/server/ws"
	"github.com/alanyoungcy/arbbot/internal/service"
)

const shutdownTimeout = 5 * time.Second

// FullMode runs the price feed, the scanner, the archiver, the bot and the
// HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	if err := a.seed(ctx, deps); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	a.startAPI(ctx, g, deps)
	return g.Wait()
}

// APIMode runs the bot and the HTTP API. Prices and opportunities come from
// a worker process sharing the same Postgres and Redis.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the price feed, the scanner and the archiver.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	if err := a.seed(ctx, deps); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

func (a *App) seed(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Seed.Enabled {
		return nil
	}
	data := service.DefaultSeed()
	data.Exchanges = a.cfg.Seed.Exchanges
	data.Pairs = a.cfg.Seed.Pairs
	if err := service.Bootstrap(ctx, deps.Store, data, a.logger); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// startWorkers adds the feed, scanner and archiver loops to g.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	source := feed.NewSimulatedSource(feed.Tables{
		Symbols:   a.cfg.Feed.Symbols,
		Exchanges: a.cfg.Feed.Exchanges,
	}, nil)
	gen := feed.NewGenerator(deps.Store, source, a.cfg.Feed.Interval.Duration, a.logger)
	gen.SetSinks(deps.PriceCache, deps.History, deps.Bus)
	g.Go(func() error {
		return gen.Run(ctx)
	})

	scanner := arbitrage.NewScanner(deps.Store, a.cfg.Scanner.Interval.Duration, a.cfg.Scanner.TTL.Duration, time.Now, a.logger)
	scanner.SetBus(deps.Bus)
	g.Go(func() error {
		return scanner.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx, a.cfg.Archive.Interval.Duration)
		})
	}
}

// startAPI adds the bot, the WebSocket hub and the HTTP server to g. The bot
// and server are shut down gracefully when ctx is cancelled.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	exec := executor.NewExecutor(deps.Store, a.cfg.Executor.BatchSize, time.Now, a.logger)
	exec.SetLockManager(deps.Locks)
	exec.SetSinks(deps.Bus, deps.History, deps.Notifier)

	bot := service.NewBotService(deps.Store, exec, a.cfg.Executor.Interval.Duration, time.Now, a.logger)
	bot.SetHooks(deps.Audit, deps.Bus, deps.Notifier)

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false; the bot cannot be controlled in this process")
		g.Go(func() error {
			<-ctx.Done()
			bot.Shutdown()
			return ctx.Err()
		})
		return
	}

	markets := service.NewMarketService(deps.Store, deps.PriceCache, a.logger)
	hub := ws.NewHub(markets, bot, deps.Bus, a.cfg.Server.WSInterval.Duration, a.logger)

	checks := make(map[string]handler.HealthCheck, len(deps.HealthChecks)+1)
	for name, check := range deps.HealthChecks {
		checks[name] = check
	}
	checks["store"] = func(ctx context.Context) error {
		_, err := deps.Store.ListExchanges(ctx)
		return err
	}

	var limiter domain.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Addr:        fmt.Sprintf(":%d", a.cfg.Server.Port),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(checks, a.logger),
		Bot:     handler.NewBotHandler(bot, a.logger),
		Markets: handler.NewMarketHandler(markets, a.logger),
	}, hub, limiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		bot.Shutdown()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
