// Package query contains read operations following CQRS pattern.
// Queries never modify persisted state; they only read and return data.
package query

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/stats"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BOARD QUERY
// Serves a board from the cache, assembling it from the store on a miss.
// Overall boards carry the per-player breakdown of every team.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCacheTTL is used when the handler is built with a zero TTL.
const DefaultCacheTTL = 5 * time.Minute

// GetBoardQuery identifies the board to read.
type GetBoardQuery struct {
	Type       leaderboard.BoardType
	SeasonYear int
	// Period is the month for monthly boards, 0 otherwise.
	Period int
}

// Key validates the query and returns its board key.
func (q GetBoardQuery) Key() (leaderboard.BoardKey, error) {
	return leaderboard.NewBoardKey(q.Type, q.SeasonYear, q.Period)
}

// GetBoardHandler handles board reads.
type GetBoardHandler struct {
	store   leaderboard.Store
	rosters contest.RosterRepository
	stats   *stats.Reader
	cache   leaderboard.Cache
	rule    leaderboard.ScoringRule
	ttl     time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewGetBoardHandler creates a new GetBoardHandler. A nil logger or tracer
// falls back to the process defaults.
func NewGetBoardHandler(
	store leaderboard.Store,
	rosters contest.RosterRepository,
	reader *stats.Reader,
	cache leaderboard.Cache,
	rule leaderboard.ScoringRule,
	ttl time.Duration,
	logger *slog.Logger,
	tracer trace.Tracer,
) *GetBoardHandler {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/hrderby/contest-hub/internal/application/query")
	}
	return &GetBoardHandler{
		store:   store,
		rosters: rosters,
		stats:   reader,
		cache:   cache,
		rule:    rule,
		ttl:     ttl,
		logger:  logger,
		tracer:  tracer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle returns the standings of a board. A board nobody was calculated for
// yet is an empty result, not an error.
func (h *GetBoardHandler) Handle(ctx context.Context, q GetBoardQuery) (*leaderboard.Standings, error) {
	key, err := q.Key()
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "GetBoard", trace.WithAttributes(attribute.String("board", key.CacheKey())))
	defer span.End()

	if cached, ok := h.cache.Get(ctx, key.CacheKey()); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	// Taken before reading the store: a write landing while the board is
	// assembled invalidates the key and the Set below is dropped.
	gen := h.cache.Generation(ctx, key.CacheKey())

	standings, err := h.assemble(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.ErrorContext(ctx, "failed to assemble board", logger.Board(key.CacheKey()), logger.Err(err))
		return nil, err
	}

	h.cache.Set(ctx, key.CacheKey(), standings, h.ttl, gen)
	return standings, nil
}

func (h *GetBoardHandler) assemble(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error) {
	rows, err := h.store.ListStandings(ctx, key)
	if err != nil {
		return nil, err
	}

	standings := &leaderboard.Standings{
		Key:         key,
		Entries:     make([]leaderboard.Standing, len(rows)),
		GeneratedAt: h.now(),
	}
	for i, r := range rows {
		standings.Entries[i] = leaderboard.StandingFromRow(r)
	}

	if key.IsSeasonLong() && len(rows) > 0 {
		if err := h.attachBreakdown(ctx, key, standings); err != nil {
			return nil, err
		}
	}
	return standings, nil
}

// attachBreakdown fills Players on every row with one roster query and one
// stats query for the whole board.
func (h *GetBoardHandler) attachBreakdown(ctx context.Context, key leaderboard.BoardKey, standings *leaderboard.Standings) error {
	teamIDs := make([]string, len(standings.Entries))
	for i, e := range standings.Entries {
		teamIDs[i] = e.TeamID
	}

	rosters, err := h.rosters.FindRostersForTeams(ctx, teamIDs)
	if err != nil {
		return err
	}

	snapshots, err := h.stats.LatestForPlayers(ctx, contest.UnionPlayerIDs(rosters), key.SeasonYear)
	if err != nil {
		return err
	}

	for i := range standings.Entries {
		score := leaderboard.ComputeTeamScore(rosters[standings.Entries[i].TeamID], snapshots, h.rule.K)
		standings.Entries[i].Players = score.Players
	}
	return nil
}
