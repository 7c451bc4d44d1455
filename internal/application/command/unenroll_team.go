package command

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNENROLL TEAM COMMAND
// Removes a team from every board of a season, for refunds and rejected
// payments. Unenrolling a team that is not on any board is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// UnenrollTeamCommand contains the data needed to unenroll a team.
type UnenrollTeamCommand struct {
	TeamID     string
	SeasonYear int
}

// Validate validates the command.
func (c UnenrollTeamCommand) Validate() error {
	if err := validateTeamID("UnenrollTeam", c.TeamID); err != nil {
		return err
	}
	return leaderboard.OverallKey(c.SeasonYear).Validate()
}

// UnenrollTeamResult lists the boards that lost an entry.
type UnenrollTeamResult struct {
	Removed []leaderboard.BoardKey
}

// UnenrollTeamHandler handles team removal.
type UnenrollTeamHandler struct {
	store leaderboard.Store
	cache leaderboard.Cache
	tel   Telemetry
}

// NewUnenrollTeamHandler creates a new UnenrollTeamHandler.
func NewUnenrollTeamHandler(store leaderboard.Store, cache leaderboard.Cache, tel Telemetry) *UnenrollTeamHandler {
	return &UnenrollTeamHandler{
		store: store,
		cache: cache,
		tel:   tel.withDefaults(),
	}
}

// Handle removes the team. The team itself is not looked up so soft-deleted
// teams can still be cleaned off the boards.
func (h *UnenrollTeamHandler) Handle(ctx context.Context, cmd UnenrollTeamCommand) (result *UnenrollTeamResult, err error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ctx, span := h.tel.start(ctx, "UnenrollTeam",
		attribute.String("team_id", cmd.TeamID),
		attribute.Int("season_year", cmd.SeasonYear),
	)
	defer func() { endSpan(span, err) }()

	keys, err := h.store.RemoveEnrollment(ctx, cmd.TeamID, cmd.SeasonYear)
	if err != nil {
		h.tel.Logger.ErrorContext(ctx, "failed to unenroll team", logger.TeamID(cmd.TeamID), logger.Err(err))
		return nil, err
	}
	for _, k := range keys {
		h.cache.Invalidate(ctx, k.CacheKey())
	}
	h.tel.Metrics.ObserveUnenrollment(len(keys))

	h.tel.Logger.InfoContext(ctx, "team unenrolled",
		logger.TeamID(cmd.TeamID),
		logger.Season(cmd.SeasonYear),
		slog.Int("boards", len(keys)),
	)
	return &UnenrollTeamResult{Removed: keys}, nil
}
