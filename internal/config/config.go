// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/arbbot/internal/feed"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Influx   InfluxConfig   `toml:"influx"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Feed     FeedConfig     `toml:"feed"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Executor ExecutorConfig `toml:"executor"`
	Seed     SeedConfig     `toml:"seed"`
}

// ServerConfig holds HTTP and WebSocket parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey turns on bearer/X-API-Key authentication for /api and /ws.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	WSInterval duration `toml:"ws_interval"`
}

// StoreConfig selects the Market State Store backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it the bot uses an in-process bus and lock table.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	CacheTTL     duration `toml:"cache_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// InfluxConfig holds InfluxDB v2 parameters for the price history sink.
type InfluxConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Org     string `toml:"org"`
	Bucket  string `toml:"bucket"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the trade ledger archiver. It only runs when S3 is
// enabled.
type ArchiveConfig struct {
	Retention duration `toml:"retention"`
	Interval  duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// FeedConfig parameterizes the simulated price feed.
type FeedConfig struct {
	Interval  duration              `toml:"interval"`
	Symbols   []feed.SymbolConfig   `toml:"symbols"`
	Exchanges []feed.ExchangeConfig `toml:"exchanges"`
}

// ScannerConfig holds opportunity scanner parameters.
type ScannerConfig struct {
	Interval duration `toml:"interval"`
	TTL      duration `toml:"ttl"`
}

// ExecutorConfig holds automatic execution parameters.
type ExecutorConfig struct {
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

// SeedConfig lists the reference data written to an empty store.
type SeedConfig struct {
	Enabled   bool     `toml:"enabled"`
	Exchanges []string `toml:"exchanges"`
	Pairs     []string `toml:"pairs"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	tables := feed.DefaultTables()
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
			WSInterval:  duration{3 * time.Second},
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "arbbot:",
			CacheTTL:     duration{time.Minute},
			StreamMaxLen: 10000,
		},
		Influx: InfluxConfig{
			URL:    "http://localhost:8086",
			Org:    "arbbot",
			Bucket: "market_data",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbbot-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Retention: duration{30 * 24 * time.Hour},
			Interval:  duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			TelegramAPIBase: "https://api.telegram.org",
			Events:          []string{"bot_started", "bot_stopped", "emergency_stop", "trade_executed"},
		},
		Feed: FeedConfig{
			Interval:  duration{2 * time.Second},
			Symbols:   tables.Symbols,
			Exchanges: tables.Exchanges,
		},
		Scanner: ScannerConfig{
			Interval: duration{5 * time.Second},
			TTL:      duration{30 * time.Second},
		},
		Executor: ExecutorConfig{
			Interval:  duration{10 * time.Second},
			BatchSize: 3,
		},
		Seed: SeedConfig{
			Enabled:   true,
			Exchanges: []string{"Binance", "Coinbase Pro", "Kraken", "Uniswap V3"},
			Pairs:     []string{"ETH/USDT", "BTC/USDT", "LINK/USDT"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"api":    true,
	"worker": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, api, worker)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Split deployments share state, so both halves need Postgres and Redis.
	if mode == "api" || mode == "worker" {
		if c.Store.Backend != "postgres" {
			errs = append(errs, fmt.Sprintf("store: mode %s requires backend postgres", mode))
		}
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Sprintf("redis: mode %s requires redis.enabled", mode))
		}
	}

	// Store
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.StreamMaxLen < 0 {
			errs = append(errs, "redis: stream_max_len must be >= 0")
		}
	}

	// Influx
	if c.Influx.Enabled {
		if _, err := url.ParseRequestURI(c.Influx.URL); err != nil {
			errs = append(errs, fmt.Sprintf("influx: invalid url %q", c.Influx.URL))
		}
		if c.Influx.Org == "" || c.Influx.Bucket == "" {
			errs = append(errs, "influx: org and bucket must not be empty")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Loops
	if c.Feed.Interval.Duration <= 0 {
		errs = append(errs, "feed: interval must be > 0")
	}
	for i, s := range c.Feed.Symbols {
		if s.Symbol == "" || s.BasePrice <= 0 {
			errs = append(errs, fmt.Sprintf("feed: symbols[%d] needs a symbol and a positive base_price", i))
		}
	}
	for i, ex := range c.Feed.Exchanges {
		if ex.Name == "" || ex.Skew <= 0 {
			errs = append(errs, fmt.Sprintf("feed: exchanges[%d] needs a name and a positive skew", i))
		}
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.TTL.Duration <= 0 {
		errs = append(errs, "scanner: ttl must be > 0")
	}
	if c.Executor.Interval.Duration <= 0 {
		errs = append(errs, "executor: interval must be > 0")
	}
	if c.Executor.BatchSize < 1 {
		errs = append(errs, "executor: batch_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 {
			if !c.Redis.Enabled {
				errs = append(errs, "server: rate_limit requires redis.enabled")
			}
			if c.Server.RateWindow.Duration <= 0 {
				errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
