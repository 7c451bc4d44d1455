package command

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/pkg/logger"
	"github.com/hrderby/contest-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE SEASON COMMAND
// Recomputes the overall board and every monthly board that has started.
// Boards have disjoint keys so they are computed concurrently.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSeasonConcurrency bounds parallel board recalculations.
const DefaultSeasonConcurrency = 4

// CalculateSeasonCommand selects the season to recompute.
type CalculateSeasonCommand struct {
	SeasonYear int
}

// CalculateSeasonResult holds one result per board, overall first then
// months in order.
type CalculateSeasonResult struct {
	SeasonYear int
	Boards     []*CalculateBoardResult
	Duration   time.Duration
}

// Entries returns the number of entries written across boards.
func (r *CalculateSeasonResult) Entries() int {
	n := 0
	for _, b := range r.Boards {
		n += len(b.Entries)
	}
	return n
}

// CalculateSeasonHandler fans out to CalculateBoardHandler.
type CalculateSeasonHandler struct {
	boards      *CalculateBoardHandler
	months      []int
	concurrency int
	tel         Telemetry
	now         func() time.Time
}

// NewCalculateSeasonHandler creates a new CalculateSeasonHandler. months are
// the contest months with a monthly board.
func NewCalculateSeasonHandler(boards *CalculateBoardHandler, months []int, concurrency int, tel Telemetry) *CalculateSeasonHandler {
	if concurrency <= 0 {
		concurrency = DefaultSeasonConcurrency
	}
	return &CalculateSeasonHandler{
		boards:      boards,
		months:      months,
		concurrency: concurrency,
		tel:         tel.withDefaults(),
		now:         time.Now,
	}
}

// Handle recomputes the season. The first failing board cancels the rest;
// boards already written stay written.
func (h *CalculateSeasonHandler) Handle(ctx context.Context, cmd CalculateSeasonCommand) (result *CalculateSeasonResult, err error) {
	if err := leaderboard.OverallKey(cmd.SeasonYear).Validate(); err != nil {
		return nil, err
	}

	ctx, span := h.tel.start(ctx, "CalculateSeason", attribute.Int("season_year", cmd.SeasonYear))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	cmds := []CalculateBoardCommand{{Type: leaderboard.BoardOverall, SeasonYear: cmd.SeasonYear}}
	for _, m := range timeutil.MonthsThrough(cmd.SeasonYear, h.months, h.now()) {
		cmds = append(cmds, CalculateBoardCommand{Type: leaderboard.BoardMonthly, SeasonYear: cmd.SeasonYear, Period: m})
	}

	boards := make([]*CalculateBoardResult, len(cmds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, c := range cmds {
		g.Go(func() error {
			res, err := h.boards.Handle(gctx, c)
			if err != nil {
				return err
			}
			boards[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.tel.Logger.ErrorContext(ctx, "season recalculation failed", logger.Season(cmd.SeasonYear), logger.Err(err))
		return nil, err
	}

	result = &CalculateSeasonResult{
		SeasonYear: cmd.SeasonYear,
		Boards:     boards,
		Duration:   time.Since(start),
	}
	h.tel.Logger.InfoContext(ctx, "season recalculated",
		logger.Season(cmd.SeasonYear),
		slog.Int("boards", len(boards)),
		slog.Int("entries", result.Entries()),
		logger.Duration(result.Duration),
	)
	return result, nil
}
