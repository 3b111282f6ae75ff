package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBBOT_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "ARBBOT_MODE")
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBBOT_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.WSInterval, "ARBBOT_SERVER_WS_INTERVAL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "ARBBOT_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "ARBBOT_REDIS_CACHE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "ARBBOT_REDIS_STREAM_MAX_LEN")

	// ── Influx ──
	setBool(&cfg.Influx.Enabled, "ARBBOT_INFLUX_ENABLED")
	setStr(&cfg.Influx.URL, "ARBBOT_INFLUX_URL")
	setStr(&cfg.Influx.Token, "ARBBOT_INFLUX_TOKEN")
	setStr(&cfg.Influx.Org, "ARBBOT_INFLUX_ORG")
	setStr(&cfg.Influx.Bucket, "ARBBOT_INFLUX_BUCKET")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setDuration(&cfg.Archive.Retention, "ARBBOT_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "ARBBOT_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPIBase, "ARBBOT_NOTIFY_TELEGRAM_API_BASE")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBBOT_NOTIFY_EVENTS")

	// ── Loops ──
	setDuration(&cfg.Feed.Interval, "ARBBOT_FEED_INTERVAL")
	setDuration(&cfg.Scanner.Interval, "ARBBOT_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.TTL, "ARBBOT_SCANNER_TTL")
	setDuration(&cfg.Executor.Interval, "ARBBOT_EXECUTOR_INTERVAL")
	setInt(&cfg.Executor.BatchSize, "ARBBOT_EXECUTOR_BATCH_SIZE")

	// ── Seed ──
	setBool(&cfg.Seed.Enabled, "ARBBOT_SEED_ENABLED")
	setStringSlice(&cfg.Seed.Exchanges, "ARBBOT_SEED_EXCHANGES")
	setStringSlice(&cfg.Seed.Pairs, "ARBBOT_SEED_PAIRS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
