// Package main is the entry point of the contest API server. It serves the
// leaderboards, consumes team lifecycle events and runs the nightly board
// recalculation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hrderby/contest-hub/config"
	"github.com/hrderby/contest-hub/internal/application/eventhandler"
	"github.com/hrderby/contest-hub/internal/bootstrap"
	"github.com/hrderby/contest-hub/internal/infrastructure/messaging"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/postgres"
	"github.com/hrderby/contest-hub/internal/infrastructure/scheduler"
	"github.com/hrderby/contest-hub/internal/infrastructure/scheduler/jobs"
	"github.com/hrderby/contest-hub/internal/infrastructure/telemetry"
	httpapi "github.com/hrderby/contest-hub/internal/interface/http"
	"github.com/hrderby/contest-hub/internal/interface/http/handlers"
	"github.com/hrderby/contest-hub/pkg/logger"
	"github.com/hrderby/contest-hub/pkg/metrics"
	"github.com/hrderby/contest-hub/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := bootstrap.NewLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting contest hub",
		slog.String("version", cfg.App.Version),
		logger.Season(cfg.Contest.Season),
		slog.String("cache", cfg.Cache.Driver),
		slog.String("messaging", cfg.Messaging.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TELEMETRY
	// ─────────────────────────────────────────────────────────────────────────
	tp, shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.OTLPInsecure,
		SampleRatio:    cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	tracer := tp.Tracer("github.com/hrderby/contest-hub")

	m := metrics.NewManager()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := bootstrap.ConnectDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	ran, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database schema is up to date", slog.Int("applied", ran))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CACHE & ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	cache, err := bootstrap.NewCache(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	engine := bootstrap.NewEngine(cfg, conn, cache, m, tracer, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Driver = cfg.Messaging.Driver
	busCfg.NATSURL = cfg.Messaging.NATSURL
	busCfg.QueueGroup = cfg.Messaging.QueueGroup

	bus, err := messaging.NewBus(busCfg, log)
	if err != nil {
		return err
	}
	eventhandler.NewTeamLifecycleHandler(engine, m, log).Register(bus)

	busErr := make(chan error, 1)
	go func() { busErr <- bus.Run(ctx) }()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg, engine, m, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(conn))
	if cache.Redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(cache.Redis))
	}

	deps := httpapi.Dependencies{
		Engine:    engine,
		Publisher: bus,
		Health:    health,
		Metrics:   m,
		Logger:    log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.MetricsHandler = m.Handler()
	}
	if sched != nil {
		deps.Jobs = sched
	}

	srvCfg := httpapi.DefaultConfig()
	srvCfg.Addr = cfg.HTTP.Addr
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.AllowedOrigins = cfg.HTTP.Origins()
	srvCfg.AdminAPIKey = cfg.HTTP.AdminAPIKey
	server := httpapi.NewServer(srvCfg, deps)
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		runErr = err
	case err := <-busErr:
		if err != nil {
			runErr = fmt.Errorf("event bus: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if err := bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus close: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	log.Info("shutdown completed")
	return errors.Join(errs...)
}

// newScheduler registers the board recalculation at the daily time, plus the
// optional intra-day interval.
func newScheduler(cfg *config.Config, calc jobs.SeasonCalculator, m *metrics.Manager, log *slog.Logger) (*scheduler.Scheduler, error) {
	daily, err := scheduler.NewDailySchedule(cfg.Scheduler.DailyAt, timeutil.Location())
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	var schedule scheduler.Schedule = daily
	if cfg.Scheduler.Interval > 0 {
		schedule = scheduler.AnySchedule{daily, scheduler.NewIntervalSchedule(cfg.Scheduler.Interval)}
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		Logger:   log,
		Timezone: timeutil.Location(),
		Observer: m,
	})

	season := cfg.Contest.Season
	job := jobs.NewRecalculateBoardsJob(calc, log, jobs.RecalculateBoardsConfig{
		Timeout: cfg.Scheduler.JobTimeout,
		Season:  func() int { return season },
	})
	if err := sched.Register(job, schedule); err != nil {
		return nil, err
	}
	return sched, nil
}
