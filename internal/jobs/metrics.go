// Package jobs provides metrics for background job operations.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
	MetricCacheInvalidationsTotal  = "cache_invalidations_total"
	MetricVerifierRepairsTotal     = "cache_verifier_repairs_total"
	MetricInvalidationQueueDepth   = "cache_invalidation_queue_depth"
)

// Job type constants for labeling.
const (
	JobTypeRankReset     = "rank_reset"
	JobTypeRankBootstrap = "rank_bootstrap"
	JobTypeCacheDrain    = "cache_drain"
	JobTypeQueueCleanup  = "queue_cleanup"
	JobTypeVerify        = "consistency_verify"
)

// Status constants for job completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for the ranking and cache-consistency
// background tasks. All operations are thread-safe.
type Metrics struct {
	jobsTotal          *prometheus.CounterVec
	jobsDuration       *prometheus.HistogramVec
	jobErrors          *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	verifierRepairs    *prometheus.CounterVec
	queueDepth         prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobsTotal,
				Help: "Total number of background job executions by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBackgroundJobsDuration,
				Help:    "Histogram of background job duration in seconds by job type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobErrorsTotal,
				Help: "Total number of background job errors by type and error type",
			},
			[]string{"job_type", "error_type"},
		),
		invalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheInvalidationsTotal,
				Help: "Total number of executed cache invalidation intents by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		verifierRepairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerifierRepairsTotal,
				Help: "Total number of stale cache entries evicted by the consistency verifier, by relation",
			},
			[]string{"relation"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricInvalidationQueueDepth,
				Help: "Current number of pending members in the durable invalidation delay queue",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncJobsTotal increments the jobs total counter.
// jobType: The type of job (e.g., JobTypeRankReset)
// status: The completion status (StatusSuccess or StatusFailure)
func (m *Metrics) IncJobsTotal(jobType, status string) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobDuration records a job duration sample.
// jobType: The type of job (e.g., JobTypeCacheDrain)
// seconds: Duration of the job in seconds
func (m *Metrics) ObserveJobDuration(jobType string, seconds float64) {
	m.jobsDuration.WithLabelValues(jobType).Observe(seconds)
}

// IncJobErrors increments the job errors counter.
// jobType: The type of job (e.g., JobTypeVerify)
// errorType: The type of error (e.g., "timeout", "store_error", "decode_error")
func (m *Metrics) IncJobErrors(jobType, errorType string) {
	m.jobErrors.WithLabelValues(jobType, errorType).Inc()
}

// IncInvalidations increments the executed-invalidations counter.
// operation: the intent operation ("delete", "update", "double_delete")
// outcome: StatusSuccess or StatusFailure
func (m *Metrics) IncInvalidations(operation, outcome string) {
	m.invalidationsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncVerifierRepairs increments the verifier repair counter for a relation
// ("like" or "favorite").
func (m *Metrics) IncVerifierRepairs(relation string) {
	m.verifierRepairs.WithLabelValues(relation).Inc()
}

// SetQueueDepth records the current delay-queue cardinality.
func (m *Metrics) SetQueueDepth(depth int64) {
	m.queueDepth.Set(float64(depth))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.jobErrors,
		m.invalidationsTotal,
		m.verifierRepairs,
		m.queueDepth,
	}
}
