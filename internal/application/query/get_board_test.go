package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/internal/domain/stats"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/memory"
	"github.com/hrderby/contest-hub/pkg/logger"
)

type fakeStore struct {
	leaderboard.Store
	rows  map[leaderboard.BoardKey][]leaderboard.StandingRow
	err   error
	calls int

	// afterRead runs once the rows were read, before they are returned.
	afterRead func(ctx context.Context, key leaderboard.BoardKey)
}

func (s *fakeStore) ListStandings(ctx context.Context, key leaderboard.BoardKey) ([]leaderboard.StandingRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	rows := s.rows[key]
	if s.afterRead != nil {
		s.afterRead(ctx, key)
	}
	return rows, nil
}

type fakeRosters struct {
	contest.RosterRepository
	rosters map[string][]contest.RosterSlot
	calls   int
}

func (f *fakeRosters) FindRostersForTeams(_ context.Context, teamIDs []string) (map[string][]contest.RosterSlot, error) {
	f.calls++
	out := map[string][]contest.RosterSlot{}
	for _, id := range teamIDs {
		if r, ok := f.rosters[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type fakeSnapshots struct {
	rows  []stats.Snapshot
	calls int
}

func (f *fakeSnapshots) FindSnapshots(_ context.Context, _ []string, _ int, _ stats.SnapshotFilter) ([]stats.Snapshot, error) {
	f.calls++
	return f.rows, nil
}

func (f *fakeSnapshots) LatestStatsDate(context.Context, int) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type fixture struct {
	store   *fakeStore
	rosters *fakeRosters
	snaps   *fakeSnapshots
	cache   *memory.BoardCache
	clock   time.Time
	handler *GetBoardHandler
}

func newFixture() *fixture {
	f := &fixture{
		store:   &fakeStore{rows: map[leaderboard.BoardKey][]leaderboard.StandingRow{}},
		rosters: &fakeRosters{rosters: map[string][]contest.RosterSlot{}},
		snaps:   &fakeSnapshots{},
		clock:   time.Date(2026, time.May, 15, 12, 0, 0, 0, time.UTC),
	}
	f.cache = memory.NewBoardCache(memory.WithClock(func() time.Time { return f.clock }))
	f.handler = NewGetBoardHandler(
		f.store, f.rosters, stats.NewReader(f.snaps), f.cache,
		leaderboard.ScoringRule{K: 2, N: 3},
		time.Minute,
		logger.Discard(),
		noop.NewTracerProvider().Tracer("test"),
	)
	return f
}

func row(key leaderboard.BoardKey, teamID string, rank, score int) leaderboard.StandingRow {
	return leaderboard.StandingRow{
		Entry:    leaderboard.Entry{ID: "e-" + teamID, TeamID: teamID, Key: key, Rank: leaderboard.Rank(rank), TotalScore: score},
		TeamName: "Team " + teamID,
		UserID:   "u-" + teamID,
		Username: "owner-" + teamID,
	}
}

func TestGetBoard_CachesAssembledStandings(t *testing.T) {
	f := newFixture()
	key := leaderboard.MonthlyKey(2026, 5)
	f.store.rows[key] = []leaderboard.StandingRow{row(key, "a", 1, 9), row(key, "b", 2, 4)}
	ctx := context.Background()

	first, err := f.handler.Handle(ctx, GetBoardQuery{Type: leaderboard.BoardMonthly, SeasonYear: 2026, Period: 5})
	require.NoError(t, err)
	second, err := f.handler.Handle(ctx, GetBoardQuery{Type: leaderboard.BoardMonthly, SeasonYear: 2026, Period: 5})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.store.calls)
	require.Equal(t, 2, first.Len())
	assert.Equal(t, "owner-a", first.Entries[0].Username)
	assert.Equal(t, leaderboard.Rank(2), first.Entries[1].Rank)
}

func TestGetBoard_MonthlyHasNoBreakdown(t *testing.T) {
	f := newFixture()
	key := leaderboard.MonthlyKey(2026, 5)
	f.store.rows[key] = []leaderboard.StandingRow{row(key, "a", 1, 9)}

	standings, err := f.handler.Handle(context.Background(), GetBoardQuery{Type: leaderboard.BoardMonthly, SeasonYear: 2026, Period: 5})
	require.NoError(t, err)

	assert.Nil(t, standings.Entries[0].Players)
	assert.Zero(t, f.rosters.calls)
	assert.Zero(t, f.snaps.calls)
}

func TestGetBoard_OverallAttachesBreakdownInTwoQueries(t *testing.T) {
	f := newFixture()
	key := leaderboard.OverallKey(2026)
	f.store.rows[key] = []leaderboard.StandingRow{row(key, "a", 1, 30), row(key, "b", 2, 5)}
	f.rosters.rosters["a"] = []contest.RosterSlot{
		{TeamID: "a", PlayerID: "p1", PlayerName: "Judge"},
		{TeamID: "a", PlayerID: "p2", PlayerName: "Ohtani"},
		{TeamID: "a", PlayerID: "p3", PlayerName: "Raleigh"},
	}
	f.rosters.rosters["b"] = []contest.RosterSlot{{TeamID: "b", PlayerID: "p4", PlayerName: "Soto"}}
	day := time.Date(2026, time.May, 14, 0, 0, 0, 0, time.UTC)
	f.snaps.rows = []stats.Snapshot{
		{PlayerID: "p1", SeasonYear: 2026, Date: day, HomeRunsTotal: 20},
		{PlayerID: "p2", SeasonYear: 2026, Date: day, HomeRunsTotal: 10},
		{PlayerID: "p3", SeasonYear: 2026, Date: day, HomeRunsTotal: 2},
		{PlayerID: "p4", SeasonYear: 2026, Date: day, HomeRunsTotal: 5},
	}

	standings, err := f.handler.Handle(context.Background(), GetBoardQuery{Type: leaderboard.BoardOverall, SeasonYear: 2026})
	require.NoError(t, err)

	assert.Equal(t, 1, f.rosters.calls)
	assert.Equal(t, 1, f.snaps.calls)

	a, ok := standings.Find("a")
	require.True(t, ok)
	require.Len(t, a.Players, 3)
	assert.Equal(t, "Judge", a.Players[0].PlayerName)
	assert.True(t, a.Players[0].Included)
	assert.True(t, a.Players[1].Included)
	assert.False(t, a.Players[2].Included)
	// the stored total is served, not the recomputed one
	assert.Equal(t, 30, a.TotalScore)

	b, _ := standings.Find("b")
	require.Len(t, b.Players, 1)
	assert.Equal(t, 5, b.Players[0].Value)
}

func TestGetBoard_EmptyBoard(t *testing.T) {
	f := newFixture()

	standings, err := f.handler.Handle(context.Background(), GetBoardQuery{Type: leaderboard.BoardOverall, SeasonYear: 2026})
	require.NoError(t, err)
	assert.Zero(t, standings.Len())
	assert.Zero(t, f.rosters.calls)
}

func TestGetBoard_ExpiryAndInvalidationReload(t *testing.T) {
	f := newFixture()
	key := leaderboard.OverallKey(2026)
	ctx := context.Background()
	q := GetBoardQuery{Type: leaderboard.BoardOverall, SeasonYear: 2026}

	_, err := f.handler.Handle(ctx, q)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Minute)
	_, err = f.handler.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.calls)

	f.cache.Invalidate(ctx, key.CacheKey())
	_, err = f.handler.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.calls)
}

func TestGetBoard_WriteDuringAssemblyIsNotCached(t *testing.T) {
	f := newFixture()
	key := leaderboard.MonthlyKey(2026, 5)
	q := GetBoardQuery{Type: leaderboard.BoardMonthly, SeasonYear: 2026, Period: 5}
	ctx := context.Background()
	f.store.rows[key] = []leaderboard.StandingRow{row(key, "old", 1, 1)}

	// A recalculation commits and invalidates while the first read is still
	// assembling the previous rows.
	f.store.afterRead = func(ctx context.Context, key leaderboard.BoardKey) {
		f.store.afterRead = nil
		f.store.rows[key] = []leaderboard.StandingRow{row(key, "new", 1, 99)}
		f.cache.Invalidate(ctx, key.CacheKey())
	}

	during, err := f.handler.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "old", during.Entries[0].TeamID)

	after, err := f.handler.Handle(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, after.Len())
	assert.Equal(t, "new", after.Entries[0].TeamID)
	assert.Equal(t, 99, after.Entries[0].TotalScore)
	assert.Equal(t, 2, f.store.calls)

	cached, err := f.handler.Handle(ctx, q)
	require.NoError(t, err)
	assert.Same(t, after, cached)
	assert.Equal(t, 2, f.store.calls)
}

func TestGetBoard_SeasonInvalidationDropsMonthlyFill(t *testing.T) {
	f := newFixture()
	key := leaderboard.MonthlyKey(2026, 5)
	q := GetBoardQuery{Type: leaderboard.BoardMonthly, SeasonYear: 2026, Period: 5}
	ctx := context.Background()
	f.store.afterRead = func(ctx context.Context, _ leaderboard.BoardKey) {
		f.store.afterRead = nil
		f.cache.Invalidate(ctx, leaderboard.SeasonPrefix(leaderboard.BoardMonthly, 2026))
	}

	_, err := f.handler.Handle(ctx, q)
	require.NoError(t, err)
	_, ok := f.cache.Get(ctx, key.CacheKey())
	assert.False(t, ok)
}

func TestGetBoard_StoreErrorNotCached(t *testing.T) {
	f := newFixture()
	f.store.err = shared.StoreError("leaderboard", "ListStandings", errors.New("connection reset"))
	ctx := context.Background()
	q := GetBoardQuery{Type: leaderboard.BoardOverall, SeasonYear: 2026}

	_, err := f.handler.Handle(ctx, q)
	require.Error(t, err)
	assert.True(t, shared.IsStoreUnavailable(err))
	assert.Zero(t, f.cache.Len())

	f.store.err = nil
	_, err = f.handler.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.calls)
}

func TestGetBoard_InvalidKey(t *testing.T) {
	f := newFixture()

	_, err := f.handler.Handle(context.Background(), GetBoardQuery{Type: "weekly", SeasonYear: 2026})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Zero(t, f.store.calls)
}
