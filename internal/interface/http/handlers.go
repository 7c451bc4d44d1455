package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/internal/infrastructure/scheduler"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// BoardDTO is a board as served to clients.
type BoardDTO struct {
	Type         string        `json:"type"`
	SeasonYear   int           `json:"season_year"`
	Period       int           `json:"period,omitempty"`
	CalculatedAt *time.Time    `json:"calculated_at,omitempty"`
	Entries      []StandingDTO `json:"entries"`
}

// StandingDTO is one board row.
type StandingDTO struct {
	Rank       int         `json:"rank"`
	TeamID     string      `json:"team_id"`
	TeamName   string      `json:"team_name"`
	TotalScore int         `json:"total_score"`
	UserID     string      `json:"user_id"`
	Username   string      `json:"username"`
	AvatarURL  string      `json:"avatar_url,omitempty"`
	Players    []PlayerDTO `json:"players,omitempty"`
}

// PlayerDTO is one player's contribution on an overall board.
type PlayerDTO struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	HomeRuns int    `json:"home_runs"`
	Counted  bool   `json:"counted"`
}

// CalculationDTO summarises one board recalculation.
type CalculationDTO struct {
	RunID        string       `json:"run_id"`
	Board        string       `json:"board"`
	Entries      int          `json:"entries"`
	Skipped      []SkippedDTO `json:"skipped,omitempty"`
	StatsThrough string       `json:"stats_through,omitempty"`
	CalculatedAt time.Time    `json:"calculated_at"`
	DurationMS   int64        `json:"duration_ms"`
}

// SkippedDTO is a team left off a board.
type SkippedDTO struct {
	TeamID string `json:"team_id"`
	Reason string `json:"reason"`
}

// EnrollmentDTO is the outcome of an enrollment.
type EnrollmentDTO struct {
	TeamID     string `json:"team_id"`
	Board      string `json:"board"`
	Rank       int    `json:"rank"`
	TotalScore int    `json:"total_score"`
	Created    bool   `json:"created"`
}

// PaymentWebhookRequest is posted by the payment processor integration.
type PaymentWebhookRequest struct {
	TeamID     string `json:"team_id"`
	SeasonYear int    `json:"season_year"`
	// Status is "approved" or "reversed".
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func boardDTO(s *leaderboard.Standings) BoardDTO {
	dto := BoardDTO{
		Type:       string(s.Key.Type),
		SeasonYear: s.Key.SeasonYear,
		Period:     s.Key.Period,
		Entries:    make([]StandingDTO, 0, len(s.Entries)),
	}
	if at := s.CalculatedAt(); !at.IsZero() {
		dto.CalculatedAt = &at
	}
	for _, e := range s.Entries {
		row := StandingDTO{
			Rank:       int(e.Rank),
			TeamID:     e.TeamID,
			TeamName:   e.TeamName,
			TotalScore: e.TotalScore,
			UserID:     e.UserID,
			Username:   e.Username,
			AvatarURL:  e.AvatarURL,
		}
		for _, p := range e.Players {
			row.Players = append(row.Players, PlayerDTO{
				PlayerID: p.PlayerID,
				Name:     p.PlayerName,
				Position: p.Position,
				HomeRuns: p.Value,
				Counted:  p.Included,
			})
		}
		dto.Entries = append(dto.Entries, row)
	}
	return dto
}

func calculationDTO(res *command.CalculateBoardResult) CalculationDTO {
	dto := CalculationDTO{
		RunID:        res.RunID,
		Board:        res.Key.String(),
		Entries:      len(res.Entries),
		CalculatedAt: res.CalculatedAt,
		DurationMS:   res.Duration.Milliseconds(),
	}
	if !res.StatsThrough.IsZero() {
		dto.StatsThrough = res.StatsThrough.Format(time.DateOnly)
	}
	for _, s := range res.Skipped {
		dto.Skipped = append(dto.Skipped, SkippedDTO{TeamID: s.TeamID, Reason: s.Reason})
	}
	return dto
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"healthy": true})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetBoard serves GET /api/leaderboards/{type}/{season}?period=.
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	key, err := boardKeyFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	board, err := s.deps.Engine.GetBoard(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardDTO(board))
}

// handleCalculateBoard serves POST /api/admin/leaderboards/{type}/{season}/calculate.
func (s *Server) handleCalculateBoard(w http.ResponseWriter, r *http.Request) {
	key, err := boardKeyFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Engine.CalculateBoard(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationDTO(res))
}

// handleCalculateSeason serves POST /api/admin/seasons/{season}/calculate.
func (s *Server) handleCalculateSeason(w http.ResponseWriter, r *http.Request) {
	season, err := seasonParam(chi.URLParam(r, "season"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Engine.CalculateSeason(r.Context(), season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	boards := make([]CalculationDTO, 0, len(res.Boards))
	for _, b := range res.Boards {
		boards = append(boards, calculationDTO(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"season_year": res.SeasonYear,
		"boards":      boards,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// handleEnrollTeam serves POST /api/admin/teams/{teamID}/enrollment?season=.
// The season may be omitted; the team's own season is used then.
func (s *Server) handleEnrollTeam(w http.ResponseWriter, r *http.Request) {
	season := 0
	if raw := r.URL.Query().Get("season"); raw != "" {
		var err error
		if season, err = seasonParam(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.deps.Engine.EnrollTeam(r.Context(), chi.URLParam(r, "teamID"), season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	writeJSON(w, code, EnrollmentDTO{
		TeamID:     res.Entry.TeamID,
		Board:      res.Entry.Key.String(),
		Rank:       int(res.Entry.Rank),
		TotalScore: res.Entry.TotalScore,
		Created:    res.Created,
	})
}

// handleUnenrollTeam serves DELETE /api/admin/teams/{teamID}/enrollment?season=.
func (s *Server) handleUnenrollTeam(w http.ResponseWriter, r *http.Request) {
	season, err := seasonParam(r.URL.Query().Get("season"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Engine.UnenrollTeam(r.Context(), chi.URLParam(r, "teamID"), season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	removed := make([]string, 0, len(res.Removed))
	for _, k := range res.Removed {
		removed = append(removed, k.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

const maxWebhookBody = 64 << 10

// handlePaymentWebhook turns a payment notification into a lifecycle event.
// Enrollment happens asynchronously in the event handler.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "event publishing is disabled")
		return
	}

	var req PaymentWebhookRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	var topic shared.EventType
	switch req.Status {
	case "approved":
		topic = shared.EventTeamPaymentApproved
	case "reversed":
		topic = shared.EventTeamPaymentReversed
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_status", `status must be "approved" or "reversed"`)
		return
	}

	event := contest.TeamPaymentEvent{
		TeamID:     req.TeamID,
		SeasonYear: req.SeasonYear,
		OccurredAt: time.Now().UTC(),
		Reason:     req.Reason,
	}
	if err := event.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Publisher.Publish(r.Context(), topic.String(), event); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to publish payment event",
			slog.String("topic", topic.String()), logger.TeamID(event.TeamID), logger.Err(err))
		writeJSONError(w, http.StatusServiceUnavailable, "publish_failed", "event could not be published")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"topic": topic.String(), "team_id": event.TeamID})
}

// ══════════════════════════════════════════════════════════════════════════════
// JOBS
// ══════════════════════════════════════════════════════════════════════════════

// JobDTO describes a scheduled job.
type JobDTO struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	Runs        int64      `json:"runs"`
	Failures    int64      `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
}

// JobRunDTO is the outcome of a manual run.
type JobRunDTO struct {
	Job        string `json:"job"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	out := make([]JobDTO, len(infos))
	for i, j := range infos {
		out[i] = JobDTO{
			Name:        j.Name,
			Description: j.Description,
			Schedule:    j.Schedule,
			LastRun:     optionalTime(j.LastRun),
			NextRun:     optionalTime(j.NextRun),
			Runs:        j.RunCount,
			Failures:    j.FailCount,
		}
		if j.LastResult != nil && j.LastResult.Error != nil {
			out[i].LastError = j.LastResult.Error.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRunJob runs a job synchronously. A failing job is still a 200: the
// request succeeded and the body reports the job's error.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := s.deps.Jobs.RunNow(r.Context(), name)
	if res == nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		s.writeError(w, r, err)
		return
	}

	dto := JobRunDTO{
		Job:        res.JobName,
		Success:    res.Success,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		dto.Error = res.Error.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PARSING
// ══════════════════════════════════════════════════════════════════════════════

func boardKeyFromRequest(r *http.Request) (leaderboard.BoardKey, error) {
	boardType, err := leaderboard.ParseBoardType(chi.URLParam(r, "type"))
	if err != nil {
		return leaderboard.BoardKey{}, err
	}
	season, err := seasonParam(chi.URLParam(r, "season"))
	if err != nil {
		return leaderboard.BoardKey{}, err
	}

	period := leaderboard.SeasonLong
	if raw := r.URL.Query().Get("period"); raw != "" {
		if period, err = strconv.Atoi(raw); err != nil {
			return leaderboard.BoardKey{}, shared.WrapError("http", "ParsePeriod", shared.ErrInvalidInput, "period must be a number", err)
		}
	}
	return leaderboard.NewBoardKey(boardType, season, period)
}

func seasonParam(raw string) (int, error) {
	season, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.WrapError("http", "ParseSeason", shared.ErrInvalidInput, "season must be a year", err)
	}
	return season, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every response.
type JSONResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{Success: status < 300, Data: data})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{Error: &APIError{Code: code, Message: message}})
}

// writeError maps domain errors onto status codes. Store failures are logged
// and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
