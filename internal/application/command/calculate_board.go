// Package command contains write operations (CQRS - Commands).
// Commands recompute or edit board membership and keep the board cache
// consistent with the store.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/stats"
	"github.com/hrderby/contest-hub/pkg/logger"
	"github.com/hrderby/contest-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE BOARD COMMAND
// Recomputes one board from scratch: eligible teams, owners, rosters and
// snapshots are each loaded in a single query, scored, ranked and written
// back in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateBoardCommand identifies the board to recompute.
type CalculateBoardCommand struct {
	Type       leaderboard.BoardType
	SeasonYear int
	// Period is the month for monthly boards, 0 otherwise.
	Period int
}

// Key validates the command and returns its board key.
func (c CalculateBoardCommand) Key() (leaderboard.BoardKey, error) {
	return leaderboard.NewBoardKey(c.Type, c.SeasonYear, c.Period)
}

// SkippedTeam is a team left off the board.
type SkippedTeam struct {
	TeamID string
	Reason string
}

// CalculateBoardResult summarizes a recalculation.
type CalculateBoardResult struct {
	// RunID correlates the log lines of one recalculation.
	RunID string

	Key     leaderboard.BoardKey
	Entries []leaderboard.Entry

	// Scores holds the per-team breakdown in rank order.
	Scores []leaderboard.TeamScore

	Skipped []SkippedTeam

	// StatsThrough is the newest stats day seen for the season, zero when
	// the season has no stats yet.
	StatsThrough time.Time

	CalculatedAt time.Time
	Duration     time.Duration
}

// CalculateBoardHandler handles board recalculation.
type CalculateBoardHandler struct {
	teams   contest.TeamRepository
	users   contest.UserRepository
	rosters contest.RosterRepository
	stats   *stats.Reader
	store   leaderboard.Store
	cache   leaderboard.Cache
	rule    leaderboard.ScoringRule
	tel     Telemetry
	now     func() time.Time
}

// NewCalculateBoardHandler creates a new CalculateBoardHandler.
func NewCalculateBoardHandler(
	teams contest.TeamRepository,
	users contest.UserRepository,
	rosters contest.RosterRepository,
	reader *stats.Reader,
	store leaderboard.Store,
	cache leaderboard.Cache,
	rule leaderboard.ScoringRule,
	tel Telemetry,
) *CalculateBoardHandler {
	return &CalculateBoardHandler{
		teams:   teams,
		users:   users,
		rosters: rosters,
		stats:   reader,
		store:   store,
		cache:   cache,
		rule:    rule,
		tel:     tel.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the recalculation. Teams whose owner no longer exists are
// skipped with a warning; any store failure aborts the run and leaves the
// previous board in place.
func (h *CalculateBoardHandler) Handle(ctx context.Context, cmd CalculateBoardCommand) (result *CalculateBoardResult, err error) {
	key, err := cmd.Key()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx, span := h.tel.start(ctx, "CalculateBoard",
		attribute.String("board", key.CacheKey()),
		attribute.String("run_id", runID),
	)
	start := time.Now()
	log := h.tel.Logger.With(logger.Board(key.CacheKey()), slog.String("run_id", runID))

	defer func() {
		entries, skipped := 0, 0
		if result != nil {
			entries, skipped = len(result.Entries), len(result.Skipped)
		}
		h.tel.Metrics.ObserveCalculation(key.CacheKey(), entries, skipped, time.Since(start), err)
		endSpan(span, err)
	}()

	teams, err := h.teams.FindTeams(ctx, contest.TeamFilter{SeasonYear: key.SeasonYear, EligibleOnly: true})
	if err != nil {
		log.ErrorContext(ctx, "failed to load teams", logger.Err(err))
		return nil, err
	}

	teams, skipped, err := h.withOwners(ctx, teams)
	if err != nil {
		log.ErrorContext(ctx, "failed to load team owners", logger.Err(err))
		return nil, err
	}
	for _, s := range skipped {
		log.WarnContext(ctx, "skipping team", logger.TeamID(s.TeamID), slog.String("reason", s.Reason))
	}

	teamIDs := make([]string, len(teams))
	for i, t := range teams {
		teamIDs[i] = t.ID
	}

	rosters, err := h.rosters.FindRostersForTeams(ctx, teamIDs)
	if err != nil {
		log.ErrorContext(ctx, "failed to load rosters", logger.Err(err))
		return nil, err
	}

	snapshots, err := h.snapshots(ctx, key, contest.UnionPlayerIDs(rosters))
	if err != nil {
		log.ErrorContext(ctx, "failed to load player stats", logger.Err(err))
		return nil, err
	}

	scores := make([]leaderboard.TeamScore, len(teams))
	for i, t := range teams {
		scores[i] = h.rule.Score(t, rosters[t.ID], snapshots)
	}

	calculatedAt := h.now()
	ranked := leaderboard.AssignRanks(leaderboard.TotalsFromScores(scores))
	entries := leaderboard.EntriesFromRanking(key, ranked, calculatedAt)

	if err := h.store.ReplaceBoard(ctx, key, entries); err != nil {
		log.ErrorContext(ctx, "failed to replace board", logger.Err(err))
		return nil, err
	}
	h.cache.Invalidate(ctx, key.CacheKey())

	result = &CalculateBoardResult{
		RunID:        runID,
		Key:          key,
		Entries:      entries,
		Scores:       inRankOrder(scores, ranked),
		Skipped:      skipped,
		CalculatedAt: calculatedAt,
		Duration:     time.Since(start),
	}

	if through, ok, err := h.stats.LatestStatsDate(ctx, key.SeasonYear); err != nil {
		log.WarnContext(ctx, "failed to read latest stats date", logger.Err(err))
	} else if ok {
		result.StatsThrough = through
	}

	log.InfoContext(ctx, "board recalculated",
		slog.Int("entries", len(entries)),
		slog.Int("skipped", len(skipped)),
		logger.Duration(result.Duration),
	)
	return result, nil
}

// withOwners drops teams whose owner is missing or deleted.
func (h *CalculateBoardHandler) withOwners(ctx context.Context, teams []*contest.Team) ([]*contest.Team, []SkippedTeam, error) {
	if len(teams) == 0 {
		return teams, nil, nil
	}

	seen := make(map[string]struct{}, len(teams))
	userIDs := make([]string, 0, len(teams))
	for _, t := range teams {
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		userIDs = append(userIDs, t.UserID)
	}

	users, err := h.users.FindUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, nil, err
	}

	kept := make([]*contest.Team, 0, len(teams))
	var skipped []SkippedTeam
	for _, t := range teams {
		u, ok := users[t.UserID]
		switch {
		case !ok:
			skipped = append(skipped, SkippedTeam{TeamID: t.ID, Reason: "owner not found"})
		case u.IsDeleted():
			skipped = append(skipped, SkippedTeam{TeamID: t.ID, Reason: "owner deleted"})
		default:
			kept = append(kept, t)
		}
	}
	return kept, skipped, nil
}

// snapshots returns the scoring value per player: the latest cumulative total
// for season-long boards, the home runs hit inside the month otherwise.
func (h *CalculateBoardHandler) snapshots(ctx context.Context, key leaderboard.BoardKey, playerIDs []string) (map[string]stats.Snapshot, error) {
	if key.IsSeasonLong() {
		return h.stats.LatestForPlayers(ctx, playerIDs, key.SeasonYear)
	}
	from, to := timeutil.MonthWindow(key.SeasonYear, key.Period)
	return h.stats.WindowSnapshots(ctx, playerIDs, key.SeasonYear, from, to)
}

func inRankOrder(scores []leaderboard.TeamScore, ranked []leaderboard.RankedTeam) []leaderboard.TeamScore {
	byTeam := make(map[string]leaderboard.TeamScore, len(scores))
	for _, s := range scores {
		byTeam[s.TeamID] = s
	}
	out := make([]leaderboard.TeamScore, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, byTeam[r.TeamID])
	}
	return out
}
