// Package config provides unified configuration for the ausweis service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (AUSWEIS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the ausweis service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Storage       StorageConfig       `yaml:"storage"`
	Tokens        TokensConfig        `yaml:"tokens"`
	Policy        PolicyConfig        `yaml:"policy"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 5s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 10s
	IdleTimeout     time.Duration `yaml:"idle_timeout"`     // default: 60s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", or "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// StorageConfig holds credential store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// TokensConfig holds token issuing settings.
type TokensConfig struct {
	Issuer     string        `yaml:"issuer"`      // default: "ausweis"
	Audience   string        `yaml:"audience"`    // default: "ausweis"
	Secret     string        `yaml:"secret"`      // HS256 signing key, at least 32 bytes
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	AccessTTL  time.Duration `yaml:"access_ttl"`  // default: 15m
	RefreshTTL time.Duration `yaml:"refresh_ttl"` // default: 720h
	Store      string        `yaml:"store"`       // "memory" or "redis", default: "memory"
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds settings for the Redis refresh-token store.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	DB           int    `yaml:"db"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
}

// PolicyConfig holds sign-in policy settings.
type PolicyConfig struct {
	RequireConfirmedEmail bool `yaml:"require_confirmed_email"` // default: false
	RequireConfirmedPhone bool `yaml:"require_confirmed_phone"` // default: false
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 disables limiting
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxBodySize:     1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Tokens: TokensConfig{
			Issuer:     "ausweis",
			Audience:   "ausweis",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 720 * time.Hour,
			Store:      "memory",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}
