package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/internal/domain/stats"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// contest fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeContest struct {
	teams   map[string]*contest.Team
	users   map[string]*contest.User
	rosters map[string][]contest.RosterSlot

	FindTeamsFunc      func(ctx context.Context, filter contest.TeamFilter) ([]*contest.Team, error)
	FindUsersByIDsFunc func(ctx context.Context, ids []string) (map[string]*contest.User, error)

	rosterCalls int
}

func newFakeContest() *fakeContest {
	return &fakeContest{
		teams:   map[string]*contest.Team{},
		users:   map[string]*contest.User{},
		rosters: map[string][]contest.RosterSlot{},
	}
}

func (f *fakeContest) FindTeams(ctx context.Context, filter contest.TeamFilter) ([]*contest.Team, error) {
	if f.FindTeamsFunc != nil {
		return f.FindTeamsFunc(ctx, filter)
	}
	var out []*contest.Team
	for _, t := range f.teams {
		if t.SeasonYear != filter.SeasonYear {
			continue
		}
		if filter.EligibleOnly && !t.IsEligible() {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeContest) FindTeamByID(_ context.Context, id string) (*contest.Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, shared.ErrTeamNotFound
	}
	return t, nil
}

func (f *fakeContest) FindUserByID(_ context.Context, id string) (*contest.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeContest) FindUsersByIDs(ctx context.Context, ids []string) (map[string]*contest.User, error) {
	if f.FindUsersByIDsFunc != nil {
		return f.FindUsersByIDsFunc(ctx, ids)
	}
	out := map[string]*contest.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeContest) FindRosterForTeam(_ context.Context, teamID string) ([]contest.RosterSlot, error) {
	return f.rosters[teamID], nil
}

func (f *fakeContest) FindRostersForTeams(_ context.Context, teamIDs []string) (map[string][]contest.RosterSlot, error) {
	f.rosterCalls++
	out := map[string][]contest.RosterSlot{}
	for _, id := range teamIDs {
		if r, ok := f.rosters[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// addTeam registers an eligible team with an owner and a roster whose
// players hit the given season totals on statsDay.
func (f *fakeContest) addTeam(snaps *fakeSnapshots, teamID, name string, created time.Time, totals ...int) {
	userID := "user-" + teamID
	f.users[userID] = &contest.User{ID: userID, Username: name + "-owner"}
	f.teams[teamID] = &contest.Team{
		ID:            teamID,
		UserID:        userID,
		Name:          name,
		SeasonYear:    2026,
		PaymentStatus: contest.PaymentPaid,
		EntryStatus:   contest.EntryLocked,
		CreatedAt:     created,
	}
	for i, v := range totals {
		pid := teamID + "-p" + string(rune('a'+i))
		f.rosters[teamID] = append(f.rosters[teamID], contest.RosterSlot{
			TeamID: teamID, PlayerID: pid, PlayerName: pid, Position: "OF", Order: i + 1,
		})
		snaps.add(pid, statsDay, v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// stats fake
// ─────────────────────────────────────────────────────────────────────────────

var statsDay = time.Date(2026, time.May, 14, 0, 0, 0, 0, time.UTC)

type fakeSnapshots struct {
	rows []stats.Snapshot
	err  error
}

func (f *fakeSnapshots) add(playerID string, date time.Time, total int) {
	f.rows = append(f.rows, stats.Snapshot{
		PlayerID: playerID, SeasonYear: 2026, Date: date,
		HomeRunsTotal: total, HomeRunsRegularSeason: total,
	})
}

func (f *fakeSnapshots) FindSnapshots(_ context.Context, playerIDs []string, seasonYear int, filter stats.SnapshotFilter) ([]stats.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, id := range playerIDs {
		want[id] = true
	}
	var out []stats.Snapshot
	for _, s := range f.rows {
		if !want[s.PlayerID] || s.SeasonYear != seasonYear {
			continue
		}
		if !filter.Before.IsZero() && !s.Date.Before(filter.Before) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSnapshots) LatestStatsDate(_ context.Context, seasonYear int) (time.Time, bool, error) {
	var latest time.Time
	for _, s := range f.rows {
		if s.SeasonYear == seasonYear && s.Date.After(latest) {
			latest = s.Date
		}
	}
	return latest, !latest.IsZero(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// leaderboard fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu     sync.Mutex
	boards map[leaderboard.BoardKey][]leaderboard.Entry

	ReplaceBoardFunc func(ctx context.Context, key leaderboard.BoardKey, entries []leaderboard.Entry) error
	replaceCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{boards: map[leaderboard.BoardKey][]leaderboard.Entry{}}
}

func (s *fakeStore) ReplaceBoard(ctx context.Context, key leaderboard.BoardKey, entries []leaderboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	if s.ReplaceBoardFunc != nil {
		if err := s.ReplaceBoardFunc(ctx, key, entries); err != nil {
			return err
		}
	}
	s.boards[key] = append([]leaderboard.Entry(nil), entries...)
	return nil
}

func (s *fakeStore) EnsureEnrolled(_ context.Context, teamID string, key leaderboard.BoardKey) (leaderboard.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxRank := leaderboard.Rank(0)
	for _, e := range s.boards[key] {
		if e.TeamID == teamID {
			return e, false, nil
		}
		if e.Rank > maxRank {
			maxRank = e.Rank
		}
	}
	e := leaderboard.Entry{ID: "entry-" + teamID, TeamID: teamID, Key: key, Rank: maxRank + 1}
	s.boards[key] = append(s.boards[key], e)
	return e, true, nil
}

func (s *fakeStore) RemoveEnrollment(_ context.Context, teamID string, seasonYear int) ([]leaderboard.BoardKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []leaderboard.BoardKey
	for key, entries := range s.boards {
		if key.SeasonYear != seasonYear {
			continue
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.TeamID != teamID {
				kept = append(kept, e)
			}
		}
		if len(kept) != len(entries) {
			keys = append(keys, key)
		}
		s.boards[key] = kept
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CacheKey() < keys[j].CacheKey() })
	return keys, nil
}

func (s *fakeStore) ListBoard(_ context.Context, key leaderboard.BoardKey) ([]leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]leaderboard.Entry(nil), s.boards[key]...), nil
}

func (s *fakeStore) ListStandings(_ context.Context, key leaderboard.BoardKey) ([]leaderboard.StandingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []leaderboard.StandingRow
	for _, e := range s.boards[key] {
		rows = append(rows, leaderboard.StandingRow{Entry: e})
	}
	return rows, nil
}

type spyCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *spyCache) Get(context.Context, string) (*leaderboard.Standings, bool)                 { return nil, false }
func (c *spyCache) Generation(context.Context, string) uint64                                  { return 0 }
func (c *spyCache) Set(context.Context, string, *leaderboard.Standings, time.Duration, uint64) {}

func (c *spyCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, key)
}

func (c *spyCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.invalidated...)
	sort.Strings(out)
	return out
}

type spyRecorder struct {
	mu           sync.Mutex
	calculations []string
	failures     int
	skipped      int
	created      int
	existing     int
	removed      int
}

func (r *spyRecorder) ObserveCalculation(key string, _ int, skipped int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculations = append(r.calculations, key)
	r.skipped += skipped
	if err != nil {
		r.failures++
	}
}

func (r *spyRecorder) ObserveEnrollment(created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if created {
		r.created++
	} else {
		r.existing++
	}
}

func (r *spyRecorder) ObserveUnenrollment(removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed += removed
}

// ─────────────────────────────────────────────────────────────────────────────
// fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	contest  *fakeContest
	snaps    *fakeSnapshots
	store    *fakeStore
	cache    *spyCache
	recorder *spyRecorder
	tel      Telemetry
}

func newFixture() *fixture {
	f := &fixture{
		contest:  newFakeContest(),
		snaps:    &fakeSnapshots{},
		store:    newFakeStore(),
		cache:    &spyCache{},
		recorder: &spyRecorder{},
	}
	f.tel = Telemetry{
		Logger:  logger.Discard(),
		Tracer:  noop.NewTracerProvider().Tracer("test"),
		Metrics: f.recorder,
	}
	return f
}

func (f *fixture) calculator() *CalculateBoardHandler {
	h := NewCalculateBoardHandler(
		f.contest, f.contest, f.contest,
		stats.NewReader(f.snaps),
		f.store, f.cache,
		leaderboard.DefaultScoringRule,
		f.tel,
	)
	h.now = func() time.Time { return time.Date(2026, time.May, 15, 10, 0, 0, 0, time.UTC) }
	return h
}
