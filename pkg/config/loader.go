package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, AUSWEIS_CONFIG env, ./config.yaml, /etc/ausweis/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. AUSWEIS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/ausweis/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check AUSWEIS_CONFIG env var.
	if envPath := os.Getenv("AUSWEIS_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/ausweis/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. Values
// that fail to parse are ignored in favor of the current value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUSWEIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AUSWEIS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUSWEIS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("AUSWEIS_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("AUSWEIS_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("AUSWEIS_TOKEN_ISSUER"); v != "" {
		cfg.Tokens.Issuer = v
	}
	if v := os.Getenv("AUSWEIS_TOKEN_SECRET"); v != "" {
		cfg.Tokens.Secret = v
	}
	if v := os.Getenv("AUSWEIS_TOKEN_STORE"); v != "" {
		cfg.Tokens.Store = v
	}
	if v := os.Getenv("AUSWEIS_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tokens.AccessTTL = d
		}
	}
	if v := os.Getenv("AUSWEIS_REFRESH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tokens.RefreshTTL = d
		}
	}
	if v := os.Getenv("AUSWEIS_REDIS_ADDR"); v != "" {
		cfg.Tokens.Redis.Addr = v
	}
	if v := os.Getenv("AUSWEIS_REQUIRE_CONFIRMED_EMAIL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Policy.RequireConfirmedEmail = b
		}
	}
	if v := os.Getenv("AUSWEIS_REQUIRE_CONFIRMED_PHONE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Policy.RequireConfirmedPhone = b
		}
	}
	if v := os.Getenv("AUSWEIS_RATELIMIT_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv("AUSWEIS_METRICS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Metrics.Enabled = b
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// tokens.secret_file -> tokens.secret
	if cfg.Tokens.SecretFile != "" && cfg.Tokens.Secret == "" {
		val, err := readSecretFile(cfg.Tokens.SecretFile)
		if err != nil {
			return fmt.Errorf("tokens.secret_file: %w", err)
		}
		cfg.Tokens.Secret = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// tokens.redis.password_file -> tokens.redis.password
	if cfg.Tokens.Redis.PasswordFile != "" && cfg.Tokens.Redis.Password == "" {
		val, err := readSecretFile(cfg.Tokens.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("tokens.redis.password_file: %w", err)
		}
		cfg.Tokens.Redis.Password = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
