package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbbot/internal/blob/s3"
	"github.com/alanyoungcy/arbbot/internal/cache/local"
	"github.com/alanyoungcy/arbbot/internal/cache/redis"
	"github.com/alanyoungcy/arbbot/internal/config"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/history/influx"
	"github.com/alanyoungcy/arbbot/internal/notify"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
	"github.com/alanyoungcy/arbbot/internal/store/memory"
	"github.com/alanyoungcy/arbbot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional parts stay nil when their backend is not configured.
type Dependencies struct {
	Store domain.MarketStore
	Audit domain.AuditStore

	// Redis when enabled, otherwise in-process.
	Bus   domain.SignalBus
	Locks domain.LockManager

	// Optional.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	History     domain.PriceHistory
	Archiver    *s3blob.Archiver

	Notifier *notify.Notifier

	// HealthChecks probes every external backend for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Market State Store ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Store = postgres.NewMarketStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pool.Ping
	default:
		deps.Store = memory.New()
		deps.Audit = memory.NewAuditLog()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		streamMaxLen := cfg.Redis.StreamMaxLen
		if streamMaxLen <= 0 {
			streamMaxLen = redis.DefaultStreamMaxLen
		}
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Bus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.Bus = local.NewBus()
		deps.Locks = local.NewLocks()
	}

	// --- InfluxDB price history ---
	if cfg.Influx.Enabled {
		recorder, err := influx.New(ctx, influx.ClientConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: influx: %w", err))
		}
		closers = append(closers, recorder.Close)
		deps.History = recorder
		deps.HealthChecks["influx"] = recorder.Ping
	}

	// --- S3 trade archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Prefix:         cfg.S3.Prefix,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Store,
			deps.Audit,
			cfg.Archive.Retention.Duration,
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIBase,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
