package config

import (
	"net/url"
	"slices"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Server.APIKey)

	redactDSN(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.Influx.Token)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Feed.Symbols = slices.Clone(cfg.Feed.Symbols)
	out.Feed.Exchanges = slices.Clone(cfg.Feed.Exchanges)
	out.Seed.Exchanges = slices.Clone(cfg.Seed.Exchanges)
	out.Seed.Pairs = slices.Clone(cfg.Seed.Pairs)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactDSN masks the password of a URL-style DSN and keeps the host and
// database readable. Anything it cannot parse is redacted whole.
func redactDSN(s *string) {
	if *s == "" {
		return
	}
	u, err := url.Parse(*s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		*s = redacted
		return
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	*s = u.String()
}
