// Package bootstrap builds the process-wide dependencies shared by the API
// server and contestctl from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hrderby/contest-hub/config"
	"github.com/hrderby/contest-hub/internal/application"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/memory"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/postgres"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/redis"
	"github.com/hrderby/contest-hub/pkg/logger"
	"github.com/hrderby/contest-hub/pkg/metrics"
	"github.com/hrderby/contest-hub/pkg/retry"
)

// ConnectDatabase opens the pool, retrying while PostgreSQL starts up.
func ConnectDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.Config{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	}

	policy := retry.Connect(cfg.ConnectAttempts, cfg.ConnectBackoff, func(attempt int, err error, delay time.Duration) {
		log.Warn("database not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logger.Err(err),
		)
	})

	conn, err := retry.Value(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

// Cache is a leaderboard cache with an optional resource to release.
type Cache struct {
	leaderboard.Cache

	// Redis is set for the redis driver; health checks ping it.
	Redis *redis.Cache
}

// Close releases the Redis client, if any.
func (c *Cache) Close() error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Close()
}

// NewCache builds the configured leaderboard cache. The memory janitor stops
// with ctx.
func NewCache(ctx context.Context, cfg *config.Config, m *metrics.Manager, log *slog.Logger) (*Cache, error) {
	switch cfg.Cache.Driver {
	case config.CacheNone:
		return &Cache{Cache: memory.NoopCache{}}, nil

	case config.CacheRedis:
		rc, err := redis.NewCache(ctx, redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &Cache{
			Cache: redis.NewBoardCache(rc, cfg.Redis.KeyPrefix, log, m),
			Redis: rc,
		}, nil

	default:
		mc := memory.NewBoardCache(memory.WithObserver(m))
		mc.StartJanitor(ctx, cfg.Cache.JanitorInterval)
		return &Cache{Cache: mc}, nil
	}
}

// NewEngine wires the postgres repositories into the application engine.
func NewEngine(cfg *config.Config, conn *postgres.Connection, cache leaderboard.Cache, m *metrics.Manager, tracer trace.Tracer, log *slog.Logger) *application.Engine {
	contestRepo := postgres.NewContestRepository(conn)
	return application.NewEngine(application.Dependencies{
		Teams:     contestRepo,
		Users:     contestRepo,
		Rosters:   contestRepo,
		Snapshots: postgres.NewStatsRepository(conn),
		Store:     postgres.NewLeaderboardRepository(conn),
		Cache:     cache,
		Rule: leaderboard.ScoringRule{
			K: cfg.Contest.TopK,
			N: cfg.Contest.RosterSize,
		},
		CacheTTL: cfg.Cache.TTL,
		Months:   cfg.Contest.Months(),
		Logger:   log,
		Tracer:   tracer,
		Metrics:  m,
	})
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *slog.Logger {
	format := logger.FormatText
	if cfg.Observability.LogFormat == string(logger.FormatJSON) {
		format = logger.FormatJSON
	}
	return logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: format,
		Attrs: []slog.Attr{
			slog.String("service", cfg.App.Name),
			slog.String("env", string(cfg.App.Environment)),
		},
	})
}
