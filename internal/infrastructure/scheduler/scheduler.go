// Package scheduler runs the contest's background jobs, chiefly the nightly
// board recalculation that follows the stats import.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hrderby/contest-hub/pkg/logger"
)

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule             = errors.New("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("scheduler: job already exists")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a unit of background work. Run receives a context that is cancelled
// when the scheduler stops.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Observer receives job outcomes. *metrics.Manager implements it.
type Observer interface {
	ObserveJob(name string, took time.Duration, err error)
}

// JobResult is the outcome of one run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error

	// Manual is set for RunNow.
	Manual bool
}

// JobInfo is a snapshot of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// Config configures a Scheduler. Zero values get defaults.
type Config struct {
	Logger *slog.Logger

	// Timezone the schedules are evaluated in (default UTC).
	Timezone *time.Location

	Observer Observer

	// TickInterval is how often due jobs are looked for (default 1s).
	TickInterval time.Duration

	// MaxHistorySize bounds the kept results (default 200).
	MaxHistorySize int
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

type entry struct {
	job      Job
	schedule Schedule

	next    time.Time
	last    time.Time
	running bool

	runs     int64
	failures int64
	result   *JobResult
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with its own scheduled runs: a due tick is dropped while the previous run
// is still going.
type Scheduler struct {
	log        *slog.Logger
	loc        *time.Location
	observer   Observer
	tick       time.Duration
	historyCap int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	history []JobResult

	// runCtx and stop are set between Start and Stop.
	runCtx    context.Context
	stop      context.CancelFunc
	startedAt time.Time
	wg        sync.WaitGroup
}

// NewScheduler returns a stopped scheduler with no jobs.
func NewScheduler(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:        log.With(logger.Component("scheduler")),
		loc:        cfg.Timezone,
		observer:   cfg.Observer,
		tick:       cfg.TickInterval,
		historyCap: cfg.MaxHistorySize,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.tick <= 0 {
		s.tick = time.Second
	}
	if s.historyCap <= 0 {
		s.historyCap = 200
	}
	return s
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	name := job.Name()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: schedule, next: schedule.Next(s.now().In(s.loc))}
	s.entries[name] = e
	s.log.Info("job registered",
		slog.String("job", name),
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", e.next),
	)
	return nil
}

// Start launches the tick loop. It stops when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.runCtx, s.stop = context.WithCancel(ctx)
	s.startedAt = s.now()
	runCtx, jobs := s.runCtx, len(s.entries)
	s.mu.Unlock()

	s.log.Info("scheduler started", slog.Int("jobs", jobs))
	s.wg.Add(1)
	go s.loop(runCtx)
	return nil
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return ErrSchedulerNotRunning
	}

	stop()
	s.wg.Wait()
	s.log.Info("scheduler stopped", logger.Duration(s.now().Sub(s.startedAt)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.dispatchDue()
		}
	}
}

// dispatchDue starts every due job that is not already running. The next
// run is advanced before the job starts, so a slow run is not started twice.
func (s *Scheduler) dispatchDue() {
	now := s.now().In(s.loc)

	s.mu.Lock()
	ctx := s.runCtx
	var due []*entry
	for _, e := range s.entries {
		if e.next.IsZero() || now.Before(e.next) {
			continue
		}
		e.next = e.schedule.Next(now)
		if e.running {
			s.log.Warn("job still running, skipping tick", slog.String("job", e.job.Name()))
			continue
		}
		e.running = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, e, false)
		}()
	}
}

// RunNow runs a job synchronously, outside its schedule. The returned error
// is the job's own; the result is nil only for an unknown job.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	res := s.run(ctx, e, true)
	return &res, res.Error
}

func (s *Scheduler) run(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	s.log.Info("job started", slog.String("job", name), slog.Bool("manual", manual))

	started := s.now()
	err := e.job.Run(ctx)
	done := s.now()
	res := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: done,
		Duration:    done.Sub(started),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}
	if s.observer != nil {
		s.observer.ObserveJob(name, res.Duration, err)
	}

	s.mu.Lock()
	if !manual {
		e.running = false
	}
	e.last = started
	e.runs++
	if err != nil {
		e.failures++
	}
	e.result = &res
	s.history = append(s.history, res)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", slog.String("job", name), logger.Duration(res.Duration), logger.Err(err))
	} else {
		s.log.Info("job completed", slog.String("job", name), logger.Duration(res.Duration))
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// INSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// ListJobs describes the registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.last,
			NextRun:     e.next,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.result,
		})
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// History returns up to limit of the most recent results, oldest first. A
// limit of zero or less returns everything kept.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return slices.Clone(s.history[len(s.history)-limit:])
}
