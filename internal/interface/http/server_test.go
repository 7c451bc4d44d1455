package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/internal/infrastructure/scheduler"
	"github.com/hrderby/contest-hub/internal/interface/http/handlers"
	"github.com/hrderby/contest-hub/pkg/logger"
)

const (
	adminKey = "s3cret"
	teamID   = "7f8e1f0c-8a4b-4d1b-9a51-0c4f7f0f3d11"
)

type fakeEngine struct {
	GetBoardFunc        func(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error)
	CalculateBoardFunc  func(ctx context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error)
	CalculateSeasonFunc func(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error)
	EnrollTeamFunc      func(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error)
	UnenrollTeamFunc    func(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error)
}

func (f *fakeEngine) GetBoard(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error) {
	return f.GetBoardFunc(ctx, key)
}

func (f *fakeEngine) CalculateBoard(ctx context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error) {
	return f.CalculateBoardFunc(ctx, key)
}

func (f *fakeEngine) CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error) {
	return f.CalculateSeasonFunc(ctx, seasonYear)
}

func (f *fakeEngine) EnrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error) {
	return f.EnrollTeamFunc(ctx, teamID, seasonYear)
}

func (f *fakeEngine) UnenrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error) {
	return f.UnenrollTeamFunc(ctx, teamID, seasonYear)
}

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, payload: payload})
	return nil
}

type spyHTTP struct {
	mu     sync.Mutex
	routes []string
}

func (s *spyHTTP) ObserveHTTP(route, method string, status int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, method+" "+route)
}

func newTestServer(engine *fakeEngine, pub EventPublisher, obs handlers.RequestObserver) *Server {
	return NewServer(Config{AdminAPIKey: adminKey}, Dependencies{
		Engine:    engine,
		Publisher: pub,
		Metrics:   obs,
		Logger:    logger.Discard(),
	})
}

func do(t *testing.T, s *Server, method, target, body string, admin bool) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if admin {
		req.Header.Set(handlers.DefaultAPIKeyHeader, adminKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestGetBoard(t *testing.T) {
	calculated := time.Date(2026, 5, 15, 10, 0, 0, 0, time.UTC)
	var gotKey leaderboard.BoardKey
	engine := &fakeEngine{GetBoardFunc: func(_ context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error) {
		gotKey = key
		return &leaderboard.Standings{Key: key, Entries: []leaderboard.Standing{
			{Rank: 1, TeamID: "a", TeamName: "Dingers", TotalScore: 40, CalculatedAt: calculated,
				Players: []leaderboard.PlayerScore{{PlayerID: "p1", PlayerName: "Judge", Value: 12, Included: true}}},
			{Rank: 1, TeamID: "b", TeamName: "Moonshots", TotalScore: 40, CalculatedAt: calculated},
		}}, nil
	}}
	s := newTestServer(engine, nil, nil)

	rec, resp := do(t, s, http.MethodGet, "/api/leaderboards/overall/2026", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, leaderboard.OverallKey(2026), gotKey)

	var board BoardDTO
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &board))
	require.Len(t, board.Entries, 2)
	assert.Equal(t, 1, board.Entries[1].Rank)
	assert.Equal(t, 12, board.Entries[0].Players[0].HomeRuns)
	require.NotNil(t, board.CalculatedAt)

	_, _ = do(t, s, http.MethodGet, "/api/leaderboards/monthly/2026?period=4", "", false)
	assert.Equal(t, leaderboard.MonthlyKey(2026, 4), gotKey)
}

func TestGetBoard_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"bad type", "/api/leaderboards/weekly/2026", nil, http.StatusBadRequest},
		{"bad season", "/api/leaderboards/overall/twenty", nil, http.StatusBadRequest},
		{"monthly without period", "/api/leaderboards/monthly/2026", nil, http.StatusBadRequest},
		{"period on overall", "/api/leaderboards/overall/2026?period=4", nil, http.StatusBadRequest},
		{"not found", "/api/leaderboards/overall/2026", shared.ErrTeamNotFound, http.StatusNotFound},
		{"store down", "/api/leaderboards/overall/2026",
			shared.StoreError("leaderboard", "ListStandings", errors.New("conn refused")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{GetBoardFunc: func(context.Context, leaderboard.BoardKey) (*leaderboard.Standings, error) {
				return nil, tt.err
			}}
			rec, resp := do(t, newTestServer(engine, nil, nil), http.MethodGet, tt.target, "", false)
			assert.Equal(t, tt.want, rec.Code)
			require.NotNil(t, resp.Error)
			assert.NotContains(t, resp.Error.Message, "conn refused")
		})
	}
}

func TestAdminRoutes_RequireAPIKey(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil, nil)

	rec, resp := do(t, s, http.MethodPost, "/api/admin/seasons/2026/calculate", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/seasons/2026/calculate", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminRoutes_DisabledWithoutKey(t *testing.T) {
	s := NewServer(Config{}, Dependencies{Engine: &fakeEngine{}, Logger: logger.Discard()})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/seasons/2026/calculate", nil)
	req.Header.Set(handlers.DefaultAPIKeyHeader, "")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCalculateBoard(t *testing.T) {
	engine := &fakeEngine{CalculateBoardFunc: func(_ context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error) {
		return &command.CalculateBoardResult{
			RunID:        "run-1",
			Key:          key,
			Entries:      make([]leaderboard.Entry, 3),
			Skipped:      []command.SkippedTeam{{TeamID: "x", Reason: "owner missing"}},
			StatsThrough: time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC),
			Duration:     1500 * time.Millisecond,
		}, nil
	}}
	rec, resp := do(t, newTestServer(engine, nil, nil), http.MethodPost, "/api/admin/leaderboards/monthly/2026/calculate?period=5", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto CalculationDTO
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &dto))
	assert.Equal(t, "monthly:2026:5", dto.Board)
	assert.Equal(t, 3, dto.Entries)
	assert.Equal(t, "2026-05-14", dto.StatsThrough)
	assert.EqualValues(t, 1500, dto.DurationMS)
	require.Len(t, dto.Skipped, 1)
}

func TestCalculateSeason(t *testing.T) {
	engine := &fakeEngine{CalculateSeasonFunc: func(_ context.Context, season int) (*command.CalculateSeasonResult, error) {
		return &command.CalculateSeasonResult{SeasonYear: season, Boards: []*command.CalculateBoardResult{
			{Key: leaderboard.OverallKey(season)},
			{Key: leaderboard.MonthlyKey(season, 4)},
		}}, nil
	}}
	rec, resp := do(t, newTestServer(engine, nil, nil), http.MethodPost, "/api/admin/seasons/2026/calculate", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 2026, data["season_year"])
	assert.Len(t, data["boards"], 2)
}

func TestEnrollment(t *testing.T) {
	var gotSeason int
	engine := &fakeEngine{
		EnrollTeamFunc: func(_ context.Context, id string, season int) (*command.EnrollTeamResult, error) {
			gotSeason = season
			return &command.EnrollTeamResult{
				Entry:   leaderboard.Entry{TeamID: id, Key: leaderboard.OverallKey(2026), Rank: 12},
				Created: season == 0,
			}, nil
		},
		UnenrollTeamFunc: func(_ context.Context, id string, season int) (*command.UnenrollTeamResult, error) {
			if season != 2026 {
				return nil, shared.ErrInvalidSeason
			}
			return &command.UnenrollTeamResult{Removed: []leaderboard.BoardKey{leaderboard.OverallKey(2026), leaderboard.MonthlyKey(2026, 4)}}, nil
		},
	}
	s := newTestServer(engine, nil, nil)

	rec, _ := do(t, s, http.MethodPost, "/api/admin/teams/"+teamID+"/enrollment", "", true)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, gotSeason)

	rec, resp := do(t, s, http.MethodPost, "/api/admin/teams/"+teamID+"/enrollment?season=2026", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2026, gotSeason)
	assert.Equal(t, false, resp.Data.(map[string]any)["created"])

	rec, resp = do(t, s, http.MethodDelete, "/api/admin/teams/"+teamID+"/enrollment?season=2026", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"overall:2026", "monthly:2026:4"}, resp.Data.(map[string]any)["removed"])

	rec, _ = do(t, s, http.MethodDelete, "/api/admin/teams/"+teamID+"/enrollment", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhook(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(&fakeEngine{}, pub, nil)

	body := `{"team_id":"` + teamID + `","season_year":2026,"status":"approved"}`
	rec, _ := do(t, s, http.MethodPost, "/api/webhooks/payments", body, false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, shared.EventTeamPaymentApproved.String(), pub.sent[0].topic)
	event := pub.sent[0].payload.(contest.TeamPaymentEvent)
	assert.Equal(t, teamID, event.TeamID)
	assert.False(t, event.OccurredAt.IsZero())

	body = `{"team_id":"` + teamID + `","season_year":2026,"status":"reversed","reason":"chargeback"}`
	rec, _ = do(t, s, http.MethodPost, "/api/webhooks/payments", body, false)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, shared.EventTeamPaymentReversed.String(), pub.sent[1].topic)
}

func TestPaymentWebhook_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"unknown field", `{"team_id":"` + teamID + `","season_year":2026,"status":"approved","amount":5}`, http.StatusBadRequest},
		{"bad status", `{"team_id":"` + teamID + `","season_year":2026,"status":"pending"}`, http.StatusBadRequest},
		{"bad team id", `{"team_id":"nope","season_year":2026,"status":"approved"}`, http.StatusBadRequest},
		{"bad season", `{"team_id":"` + teamID + `","season_year":1999,"status":"approved"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			rec, _ := do(t, newTestServer(&fakeEngine{}, pub, nil), http.MethodPost, "/api/webhooks/payments", tt.body, false)
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, pub.sent)
		})
	}

	pub := &fakePublisher{err: errors.New("nats down")}
	body := `{"team_id":"` + teamID + `","season_year":2026,"status":"approved"}`
	rec, _ := do(t, newTestServer(&fakeEngine{}, pub, nil), http.MethodPost, "/api/webhooks/payments", body, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	obs := &spyHTTP{}
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("db", func(context.Context) error { return errors.New("down") })

	s := NewServer(Config{AdminAPIKey: adminKey}, Dependencies{
		Engine: &fakeEngine{GetBoardFunc: func(_ context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error) {
			return &leaderboard.Standings{Key: key}, nil
		}},
		Health:         health,
		Metrics:        obs,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Logger:         logger.Discard(),
	})

	rec, _ := do(t, s, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(mrec, req)
	assert.Equal(t, "# metrics", mrec.Body.String())

	_, _ = do(t, s, http.MethodGet, "/api/leaderboards/overall/2026", "", false)
	assert.Contains(t, obs.routes, "GET /api/leaderboards/{type}/{season}")
}

func TestUnknownRoute(t *testing.T) {
	rec, resp := do(t, newTestServer(&fakeEngine{}, nil, nil), http.MethodGet, "/nope", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", resp.Error.Code)
}

type stubJob struct{ err error }

func (stubJob) Name() string                { return "recalculate_boards" }
func (stubJob) Description() string         { return "stub" }
func (j stubJob) Run(context.Context) error { return j.err }

func TestJobRoutes(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.Config{Logger: logger.Discard()})
	require.NoError(t, sched.Register(stubJob{err: errors.New("stats missing")}, scheduler.NewIntervalSchedule(time.Hour)))

	s := NewServer(Config{AdminAPIKey: adminKey}, Dependencies{
		Engine: &fakeEngine{},
		Jobs:   sched,
		Logger: logger.Discard(),
	})

	rec, resp := do(t, s, http.MethodGet, "/api/admin/jobs", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []JobDTO
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.Nil(t, jobs[0].LastRun)

	rec, resp = do(t, s, http.MethodPost, "/api/admin/jobs/recalculate_boards/run", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var run JobRunDTO
	raw, _ = json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &run))
	assert.False(t, run.Success)
	assert.Equal(t, "stats missing", run.Error)

	_, resp = do(t, s, http.MethodGet, "/api/admin/jobs", "", true)
	raw, _ = json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &jobs))
	assert.EqualValues(t, 1, jobs[0].Failures)
	assert.Equal(t, "stats missing", jobs[0].LastError)

	rec, _ = do(t, s, http.MethodPost, "/api/admin/jobs/missing/run", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/admin/jobs", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobRoutes_NotMountedWithoutScheduler(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeEngine{}, nil, nil), http.MethodGet, "/api/admin/jobs", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
