package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric of the process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	cacheRequests       *prometheus.CounterVec
	cacheInvalidateErrs *prometheus.CounterVec
	calculationDuration *prometheus.HistogramVec
	calculationFailures *prometheus.CounterVec
	calculatedEntries   *prometheus.GaugeVec
	teamsSkipped        *prometheus.CounterVec
	enrollments         *prometheus.CounterVec
	unenrollments       prometheus.Counter
	jobRuns             *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	eventsHandled       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on a fresh registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "contest",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.cacheRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_requests_total",
		Help:      "Board cache lookups by board type and result (hit or miss)",
	}, []string{"board_type", "result"})

	m.cacheInvalidateErrs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_invalidation_failures_total",
		Help:      "Board cache invalidation steps that failed, by board type and step",
	}, []string{"board_type", "step"})

	m.calculationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calculation_duration_seconds",
		Help:      "Duration of full board recalculations",
		Buckets:   m.histogramBuckets,
	}, []string{"board_type"})

	m.calculationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calculation_failures_total",
		Help:      "Board recalculations that returned an error",
	}, []string{"board_type"})

	m.calculatedEntries = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "board_entries",
		Help:      "Entries written by the last recalculation of a board",
	}, []string{"board"})

	m.teamsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "teams_skipped_total",
		Help:      "Teams left off a board because their owner no longer exists",
	}, []string{"board_type"})

	m.enrollments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "enrollments_total",
		Help:      "Enrollment calls by outcome (created or existing)",
	}, []string{"outcome"})

	m.unenrollments = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unenrolled_entries_total",
		Help:      "Board entries removed by unenrollment",
	})

	m.jobRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by job and status",
	}, []string{"job", "status"})

	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job duration",
		Buckets:   m.histogramBuckets,
	}, []string{"job"})

	m.eventsHandled = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "events",
		Name:      "handled_total",
		Help:      "Team lifecycle events by topic and outcome",
	}, []string{"topic", "outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// Registry returns the registry metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDERS
// ══════════════════════════════════════════════════════════════════════════════

// CacheHit records a cache hit for a board cache key.
func (m *Manager) CacheHit(boardKey string) {
	m.cacheRequests.WithLabelValues(boardType(boardKey), "hit").Inc()
}

// CacheMiss records a cache miss for a board cache key.
func (m *Manager) CacheMiss(boardKey string) {
	m.cacheRequests.WithLabelValues(boardType(boardKey), "miss").Inc()
}

// CacheInvalidateFailed records a failed invalidation step ("bump" or
// "delete") of a shared cache.
func (m *Manager) CacheInvalidateFailed(boardKey, step string) {
	m.cacheInvalidateErrs.WithLabelValues(boardType(boardKey), step).Inc()
}

// ObserveCalculation records one board recalculation.
func (m *Manager) ObserveCalculation(boardKey string, entries, skipped int, took time.Duration, err error) {
	bt := boardType(boardKey)
	m.calculationDuration.WithLabelValues(bt).Observe(took.Seconds())
	if err != nil {
		m.calculationFailures.WithLabelValues(bt).Inc()
		return
	}
	m.calculatedEntries.WithLabelValues(boardKey).Set(float64(entries))
	if skipped > 0 {
		m.teamsSkipped.WithLabelValues(bt).Add(float64(skipped))
	}
}

// ObserveEnrollment records an enrollment outcome.
func (m *Manager) ObserveEnrollment(created bool) {
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

// ObserveUnenrollment records how many entries an unenrollment removed.
func (m *Manager) ObserveUnenrollment(removed int) {
	m.unenrollments.Add(float64(removed))
}

// ObserveJob records a scheduled job run.
func (m *Manager) ObserveJob(name string, took time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobRuns.WithLabelValues(name, status).Inc()
	m.jobDuration.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveEvent records a handled lifecycle event.
func (m *Manager) ObserveEvent(topic, outcome string) {
	m.eventsHandled.WithLabelValues(topic, outcome).Inc()
}

// ObserveHTTP records a served request.
func (m *Manager) ObserveHTTP(route, method string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

// boardType extracts "monthly" from "monthly:2026:4".
func boardType(boardKey string) string {
	if i := strings.IndexByte(boardKey, ':'); i > 0 {
		return boardKey[:i]
	}
	return boardKey
}
