package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL TEAM COMMAND
// Puts a team on its season's overall board with a zero-score placeholder
// until the next recalculation. Enrolling twice is not an error.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollTeamCommand contains the data needed to enroll a team.
type EnrollTeamCommand struct {
	TeamID string

	// SeasonYear defaults to the team's own season when zero.
	SeasonYear int
}

// Validate validates the command.
func (c EnrollTeamCommand) Validate() error {
	return validateTeamID("EnrollTeam", c.TeamID)
}

// EnrollTeamResult contains the entry the team holds on the board.
type EnrollTeamResult struct {
	Entry leaderboard.Entry

	// Created is false when the team was already enrolled.
	Created bool
}

// EnrollTeamHandler handles team enrollment.
type EnrollTeamHandler struct {
	teams contest.TeamRepository
	store leaderboard.Store
	cache leaderboard.Cache
	tel   Telemetry
}

// NewEnrollTeamHandler creates a new EnrollTeamHandler.
func NewEnrollTeamHandler(teams contest.TeamRepository, store leaderboard.Store, cache leaderboard.Cache, tel Telemetry) *EnrollTeamHandler {
	return &EnrollTeamHandler{
		teams: teams,
		store: store,
		cache: cache,
		tel:   tel.withDefaults(),
	}
}

// Handle enrolls the team. A missing or deleted team is shared.ErrTeamNotFound.
func (h *EnrollTeamHandler) Handle(ctx context.Context, cmd EnrollTeamCommand) (result *EnrollTeamResult, err error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ctx, span := h.tel.start(ctx, "EnrollTeam", attribute.String("team_id", cmd.TeamID))
	defer func() { endSpan(span, err) }()

	team, err := h.teams.FindTeamByID(ctx, cmd.TeamID)
	if err != nil {
		return nil, err
	}
	if team.IsDeleted() {
		return nil, shared.ErrTeamNotFound
	}

	season := cmd.SeasonYear
	if season == 0 {
		season = team.SeasonYear
	}
	if season != team.SeasonYear {
		return nil, shared.NewDomainError("command", "EnrollTeam", shared.ErrValidation,
			fmt.Sprintf("team plays season %d, not %d", team.SeasonYear, season))
	}

	key := leaderboard.OverallKey(season)
	if err := key.Validate(); err != nil {
		return nil, err
	}

	entry, created, err := h.store.EnsureEnrolled(ctx, team.ID, key)
	if err != nil {
		h.tel.Logger.ErrorContext(ctx, "failed to enroll team", logger.TeamID(team.ID), logger.Err(err))
		return nil, err
	}
	h.cache.Invalidate(ctx, key.CacheKey())
	h.tel.Metrics.ObserveEnrollment(created)

	if created {
		h.tel.Logger.InfoContext(ctx, "team enrolled", logger.TeamID(team.ID), logger.Board(key.CacheKey()), slog.Int("rank", int(entry.Rank)))
	} else {
		h.tel.Logger.DebugContext(ctx, "team already enrolled", logger.TeamID(team.ID), logger.Board(key.CacheKey()))
	}

	return &EnrollTeamResult{Entry: entry, Created: created}, nil
}

func validateTeamID(op, teamID string) error {
	if teamID == "" {
		return shared.NewDomainError("command", op, shared.ErrInvalidID, "team id is required")
	}
	if _, err := uuid.Parse(teamID); err != nil {
		return shared.WrapError("command", op, shared.ErrInvalidID, "team id must be a UUID", err)
	}
	return nil
}
