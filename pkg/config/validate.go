package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure. Secret values
// are never included in error messages.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// server.max_body_size must be positive.
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	// log.level must be a known value.
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", c.Log.Level))
	}

	// log.format must be a known value.
	switch c.Log.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// tokens.issuer is required.
	if c.Tokens.Issuer == "" {
		errs = append(errs, fmt.Errorf("tokens.issuer is required"))
	}

	// tokens.secret or tokens.secret_file must be set, and the resolved
	// secret must be long enough for HS256.
	if c.Tokens.Secret == "" && c.Tokens.SecretFile == "" {
		errs = append(errs, fmt.Errorf("tokens.secret or tokens.secret_file is required"))
	}
	if c.Tokens.Secret != "" && len(c.Tokens.Secret) < 32 {
		errs = append(errs, fmt.Errorf("tokens.secret must be at least 32 bytes, got %d", len(c.Tokens.Secret)))
	}

	// Token lifetimes must be positive.
	if c.Tokens.AccessTTL <= 0 {
		errs = append(errs, fmt.Errorf("tokens.access_ttl must be > 0, got %v", c.Tokens.AccessTTL))
	}
	if c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, fmt.Errorf("tokens.refresh_ttl must be > 0, got %v", c.Tokens.RefreshTTL))
	}

	// tokens.store must be a known value.
	switch c.Tokens.Store {
	case "memory", "redis":
		// valid
	default:
		errs = append(errs, fmt.Errorf("tokens.store must be \"memory\" or \"redis\", got %q", c.Tokens.Store))
	}

	// If tokens.store is "redis", an address must be set.
	if c.Tokens.Store == "redis" && c.Tokens.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("tokens.redis.addr is required when tokens.store is \"redis\""))
	}

	// ratelimit.requests_per_minute must not be negative.
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.requests_per_minute must be >= 0, got %d", c.RateLimit.RequestsPerMinute))
	}

	return errors.Join(errs...)
}
