// Package http serves the contest leaderboards over a small REST API: public
// board reads, admin recalculation and enrollment, and the payment webhook
// that feeds the team lifecycle events.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/infrastructure/scheduler"
	"github.com/hrderby/contest-hub/internal/interface/http/handlers"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr to listen on (default ":8080").
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds one handler, including board recalculation.
	RequestTimeout time.Duration

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string

	// APIKeyHeader is the header carrying the admin key.
	APIKeyHeader string

	// AdminAPIKey guards the admin routes. Admin routes reject every request
	// while it is empty.
	AdminAPIKey string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 90 * time.Second,
		APIKeyHeader:   handlers.DefaultAPIKeyHeader,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Engine is the slice of the application engine the API needs.
type Engine interface {
	GetBoard(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error)
	CalculateBoard(ctx context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error)
	CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error)
	EnrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error)
	UnenrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error)
}

// EventPublisher publishes lifecycle events. *messaging.Bus implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// JobRunner lists and triggers background jobs. *scheduler.Scheduler
// implements it.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Engine    Engine
	Publisher EventPublisher

	// Jobs is nil when the scheduler is disabled; the job routes are then
	// not mounted.
	Jobs JobRunner

	// Health is optional; without it /healthz always reports healthy.
	Health handlers.HealthChecker

	// Metrics and MetricsHandler are optional.
	Metrics        handlers.RequestObserver
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = def.APIKeyHeader
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(handlers.Metrics(s.deps.Metrics))
	}

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", s.config.APIKeyHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Get("/leaderboards/{type}/{season}", s.handleGetBoard)
		r.Post("/webhooks/payments", s.handlePaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.AdminAPIKey).Middleware)

			r.Post("/leaderboards/{type}/{season}/calculate", s.handleCalculateBoard)
			r.Post("/seasons/{season}/calculate", s.handleCalculateSeason)
			r.Post("/teams/{teamID}/enrollment", s.handleEnrollTeam)
			r.Delete("/teams/{teamID}/enrollment", s.handleUnenrollTeam)

			if s.deps.Jobs != nil {
				r.Get("/jobs", s.handleListJobs)
				r.Post("/jobs/{name}/run", s.handleRunJob)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Addr
}
