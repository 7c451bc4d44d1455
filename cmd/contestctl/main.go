// Command contestctl administers the contest database and leaderboards:
// migrations, on-demand recalculation, board inspection and enrollment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hrderby/contest-hub/config"
	"github.com/hrderby/contest-hub/internal/bootstrap"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/postgres"
	"github.com/hrderby/contest-hub/internal/infrastructure/telemetry"
	"github.com/hrderby/contest-hub/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, openRuntime)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "contestctl: %v\n", err)
		os.Exit(1)
	}
}

// openRuntime connects to the configured database. Commands run against the
// configured cache so a recalculation also invalidates what the API serves
// when the cache is shared through Redis.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := bootstrap.NewLogger(cfg)

	tp, shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    cfg.App.Name + "-ctl",
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.OTLPInsecure,
		SampleRatio:    cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		return nil, err
	}

	conn, err := bootstrap.ConnectDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	m := metrics.NewManager()
	cache, err := bootstrap.NewCache(ctx, cfg, m, log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &runtime{
		Season:   cfg.Contest.Season,
		Migrator: postgres.NewMigrator(conn),
		Engine:   bootstrap.NewEngine(cfg, conn, cache, m, tp.Tracer("github.com/hrderby/contest-hub/contestctl"), log),
		Close: func() {
			_ = cache.Close()
			conn.Close()
			_ = shutdownTracing(context.Background())
		},
	}, nil
}
