// Command server runs the ausweis identity service.
//
// Configuration is loaded from an optional YAML file plus AUSWEIS_*
// environment overrides (see pkg/config). The most common variables:
//
//	AUSWEIS_CONFIG        - Config file path (default: ./config.yaml)
//	AUSWEIS_PORT          - Listen port (default: 8080)
//	AUSWEIS_STORAGE       - Credential store: "memory" or "postgres"
//	AUSWEIS_POSTGRES_DSN  - PostgreSQL connection string
//	AUSWEIS_TOKEN_SECRET  - HS256 signing key, at least 32 bytes
//	AUSWEIS_TOKEN_STORE   - Refresh token store: "memory" or "redis"
//	AUSWEIS_REDIS_ADDR    - Redis address for the refresh token store
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/ausweis/pkg/config"
	"github.com/rhuss/ausweis/pkg/identity"
	"github.com/rhuss/ausweis/pkg/store"
	storememory "github.com/rhuss/ausweis/pkg/store/memory"
	"github.com/rhuss/ausweis/pkg/store/password"
	storepostgres "github.com/rhuss/ausweis/pkg/store/postgres"
	"github.com/rhuss/ausweis/pkg/tokens"
	tokensmemory "github.com/rhuss/ausweis/pkg/tokens/memory"
	tokensredis "github.com/rhuss/ausweis/pkg/tokens/redis"
	transporthttp "github.com/rhuss/ausweis/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()

	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}
	policy := store.SignInPolicy{
		RequireConfirmedEmail: cfg.Policy.RequireConfirmedEmail,
		RequireConfirmedPhone: cfg.Policy.RequireConfirmedPhone,
	}

	// Collaborator health checks surfaced on /readyz.
	var checks []func(context.Context) error

	// Credential store.
	var users store.CredentialStore
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		}, hasher, policy)
		if err != nil {
			return fmt.Errorf("creating postgres store: %w", err)
		}
		defer pg.Close()
		users = pg
		checks = append(checks, pg.HealthCheck)
		logger.Info("credential store ready", "type", "postgres")
	default:
		users = storememory.New(hasher, policy)
		logger.Info("credential store ready", "type", "memory")
	}

	// Refresh token store.
	var refresh tokens.RefreshStore
	switch cfg.Tokens.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Tokens.Redis.Addr,
			DB:       cfg.Tokens.Redis.DB,
			Password: cfg.Tokens.Redis.Password,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		refresh = tokensredis.New(client)
		checks = append(checks, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("refresh token store ready", "type", "redis", "addr", cfg.Tokens.Redis.Addr)
	default:
		refresh = tokensmemory.New()
		logger.Info("refresh token store ready", "type", "memory")
	}

	issuer, err := tokens.NewIssuer(tokens.Config{
		Issuer:     cfg.Tokens.Issuer,
		Audience:   cfg.Tokens.Audience,
		Secret:     []byte(cfg.Tokens.Secret),
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	}, refresh)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	flows, err := identity.New(users, issuer)
	if err != nil {
		return fmt.Errorf("creating identity flows: %w", err)
	}

	srv := transporthttp.NewServer(flows,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled),
		transporthttp.WithRateLimit(cfg.RateLimit.RequestsPerMinute),
		transporthttp.WithReadyCheck(readyCheck(checks)),
	)

	return srv.ListenAndServe()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// readyCheck combines collaborator health checks into a single ReadyFunc.
// Returns nil when there is nothing to check beyond process liveness.
func readyCheck(checks []func(context.Context) error) transporthttp.ReadyFunc {
	if len(checks) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
