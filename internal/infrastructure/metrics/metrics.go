// Package metrics exposes the hub's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance_hub"

// Metrics holds every collector. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec

	fetches       *prometheus.CounterVec
	loads         *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	generation    prometheus.Gauge

	exports *prometheus.CounterVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Attendance backend HTTP attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Attendance backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"target"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_fetches_total",
			Help:      "Student month fetches during roster loads by outcome.",
		}, []string{"outcome"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_loads_total",
			Help:      "Roster load lifecycle events.",
		}, []string{"event"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roster_batch_duration_seconds",
			Help:      "Duration of one roster batch by phase.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roster_generation",
			Help:      "Generation of the last published roster snapshot.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Rendered exports by kind and outcome.",
		}, []string{"kind", "outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduled job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduled job duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backendRequests,
		m.backendDuration,
		m.breakerState,
		m.fetches,
		m.loads,
		m.batchDuration,
		m.generation,
		m.exports,
		m.jobRuns,
		m.jobDuration,
		m.httpRequests,
		m.httpDuration,
	)

	m.breakerState.WithLabelValues("attendance-backend").Set(0)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBackendRequest records one backend attempt.
func (m *Metrics) ObserveBackendRequest(endpoint, outcome string, elapsed time.Duration) {
	m.backendRequests.WithLabelValues(endpoint, outcome).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(target string, state int) {
	m.breakerState.WithLabelValues(target).Set(float64(state))
}

// FetchFinished counts a student month as fetched or substituted with zeros.
func (m *Metrics) FetchFinished(ok bool) {
	if ok {
		m.fetches.WithLabelValues("ok").Inc()
		return
	}
	m.fetches.WithLabelValues("substituted").Inc()
}

// LoadEvent counts started, superseded and completed loads.
func (m *Metrics) LoadEvent(event string) {
	m.loads.WithLabelValues(event).Inc()
}

// BatchFinished records a batch duration.
func (m *Metrics) BatchFinished(phase string, elapsed time.Duration) {
	m.batchDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// SnapshotPublished records the generation of a publication.
func (m *Metrics) SnapshotPublished(generation uint64) {
	m.generation.Set(float64(generation))
}

// ExportRendered counts an export attempt.
func (m *Metrics) ExportRendered(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(kind, outcome).Inc()
}

// JobFinished records one scheduled job execution.
func (m *Metrics) JobFinished(job string, elapsed time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
