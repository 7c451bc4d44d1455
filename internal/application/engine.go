// Package application wires the contest use cases into the Engine, the single
// entry point used by the HTTP API, the scheduler, event handlers and the CLI.
package application

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/application/query"
	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/stats"
)

// Dependencies holds everything the Engine needs. Logger, Tracer and Metrics
// are optional.
type Dependencies struct {
	Teams     contest.TeamRepository
	Users     contest.UserRepository
	Rosters   contest.RosterRepository
	Snapshots stats.SnapshotRepository
	Store     leaderboard.Store
	Cache     leaderboard.Cache

	Rule     leaderboard.ScoringRule
	CacheTTL time.Duration

	// Months lists the contest months with a monthly board.
	Months []int

	// SeasonConcurrency bounds parallel board recalculations.
	SeasonConcurrency int

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics command.Recorder
}

// Engine exposes the contest operations.
type Engine struct {
	calculateBoard  *command.CalculateBoardHandler
	calculateSeason *command.CalculateSeasonHandler
	enroll          *command.EnrollTeamHandler
	unenroll        *command.UnenrollTeamHandler
	getBoard        *query.GetBoardHandler
}

// NewEngine builds the handlers over the dependencies.
func NewEngine(deps Dependencies) *Engine {
	if deps.Rule.K == 0 {
		deps.Rule = leaderboard.DefaultScoringRule
	}
	tel := command.Telemetry{Logger: deps.Logger, Tracer: deps.Tracer, Metrics: deps.Metrics}
	reader := stats.NewReader(deps.Snapshots)

	calc := command.NewCalculateBoardHandler(
		deps.Teams, deps.Users, deps.Rosters, reader,
		deps.Store, deps.Cache, deps.Rule, tel,
	)

	return &Engine{
		calculateBoard:  calc,
		calculateSeason: command.NewCalculateSeasonHandler(calc, deps.Months, deps.SeasonConcurrency, tel),
		enroll:          command.NewEnrollTeamHandler(deps.Teams, deps.Store, deps.Cache, tel),
		unenroll:        command.NewUnenrollTeamHandler(deps.Store, deps.Cache, tel),
		getBoard: query.NewGetBoardHandler(
			deps.Store, deps.Rosters, reader, deps.Cache,
			deps.Rule, deps.CacheTTL, deps.Logger, deps.Tracer,
		),
	}
}

// CalculateBoard recomputes one board.
func (e *Engine) CalculateBoard(ctx context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error) {
	return e.calculateBoard.Handle(ctx, command.CalculateBoardCommand{
		Type:       key.Type,
		SeasonYear: key.SeasonYear,
		Period:     key.Period,
	})
}

// CalculateSeason recomputes the overall board and every started month.
func (e *Engine) CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error) {
	return e.calculateSeason.Handle(ctx, command.CalculateSeasonCommand{SeasonYear: seasonYear})
}

// GetBoard returns the standings of a board, cache first.
func (e *Engine) GetBoard(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error) {
	return e.getBoard.Handle(ctx, query.GetBoardQuery{
		Type:       key.Type,
		SeasonYear: key.SeasonYear,
		Period:     key.Period,
	})
}

// EnrollTeam puts a team on its season's overall board. A season of 0 means
// the team's own season.
func (e *Engine) EnrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error) {
	return e.enroll.Handle(ctx, command.EnrollTeamCommand{TeamID: teamID, SeasonYear: seasonYear})
}

// UnenrollTeam removes a team from every board of a season.
func (e *Engine) UnenrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error) {
	return e.unenroll.Handle(ctx, command.UnenrollTeamCommand{TeamID: teamID, SeasonYear: seasonYear})
}
