// Package jobs contains the scheduled jobs of the contest.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE BOARDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SeasonCalculator recomputes every board of a season. *application.Engine
// implements it.
type SeasonCalculator interface {
	CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error)
}

// RecalculateBoardsConfig configures the job.
type RecalculateBoardsConfig struct {
	// Timeout bounds one run.
	Timeout time.Duration

	// Season returns the season to recalculate. It is evaluated on every run
	// so a long-lived process follows the calendar.
	Season func() int
}

// DefaultRecalculateBoardsConfig returns the default configuration for the
// current calendar year.
func DefaultRecalculateBoardsConfig() RecalculateBoardsConfig {
	return RecalculateBoardsConfig{
		Timeout: 10 * time.Minute,
		Season:  func() int { return time.Now().Year() },
	}
}

// RunStats summarises the last run.
type RunStats struct {
	SeasonYear   int
	Boards       int
	Entries      int
	Skipped      int
	StatsThrough time.Time
	FinishedAt   time.Time
	Duration     time.Duration
}

// RecalculateBoardsJob rebuilds the overall and monthly boards after the
// nightly stats import.
type RecalculateBoardsJob struct {
	calculator SeasonCalculator
	logger     *slog.Logger
	config     RecalculateBoardsConfig

	lastStats atomic.Value // *RunStats
}

// NewRecalculateBoardsJob creates the job.
func NewRecalculateBoardsJob(calculator SeasonCalculator, log *slog.Logger, cfg RecalculateBoardsConfig) *RecalculateBoardsJob {
	def := DefaultRecalculateBoardsConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Season == nil {
		cfg.Season = def.Season
	}
	if log == nil {
		log = slog.Default()
	}
	return &RecalculateBoardsJob{
		calculator: calculator,
		logger:     log.With(logger.Component("job.recalculate_boards")),
		config:     cfg,
	}
}

// Name returns the job name.
func (j *RecalculateBoardsJob) Name() string {
	return "recalculate_boards"
}

// Description returns the job description.
func (j *RecalculateBoardsJob) Description() string {
	return "Recalculates the overall and monthly leaderboards of the current season"
}

// Run executes the job.
func (j *RecalculateBoardsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	season := j.config.Season()
	start := time.Now()

	res, err := j.calculator.CalculateSeason(ctx, season)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("recalculate season %d: timed out after %s: %w", season, j.config.Timeout, err)
		}
		return fmt.Errorf("recalculate season %d: %w", season, err)
	}

	stats := &RunStats{
		SeasonYear: season,
		Boards:     len(res.Boards),
		Entries:    res.Entries(),
		FinishedAt: time.Now(),
		Duration:   time.Since(start),
	}
	for _, b := range res.Boards {
		stats.Skipped += len(b.Skipped)
		if b.StatsThrough.After(stats.StatsThrough) {
			stats.StatsThrough = b.StatsThrough
		}
	}
	j.lastStats.Store(stats)

	j.logger.Info("season recalculated",
		logger.Season(season),
		slog.Int("boards", stats.Boards),
		slog.Int("entries", stats.Entries),
		slog.Int("skipped", stats.Skipped),
		logger.Duration(stats.Duration),
	)
	return nil
}

// LastStats returns the statistics of the last successful run, nil before
// the first one.
func (j *RecalculateBoardsJob) LastStats() *RunStats {
	s, _ := j.lastStats.Load().(*RunStats)
	return s
}
