package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the engine's operational counters. A single instance is
// registered on the default prometheus registry.
type Metrics struct {
	releaseAttempts *prometheus.CounterVec
	releaseDuration prometheus.Histogram
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	carrierEvents   *prometheus.CounterVec
	reminders       *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		releaseAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "release_attempts_total",
			Help:      "Release executor outcomes by trigger.",
		}, []string{"trigger", "outcome"}),
		releaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "escrow",
			Name:      "release_duration_seconds",
			Help:      "Wall time of a single release execution.",
			Buckets:   prometheus.DefBuckets,
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job invocations.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "scheduler_job_errors_total",
			Help:      "Scheduler job failures.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escrow",
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduler job run duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		carrierEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "carrier_events_total",
			Help:      "Ingested carrier webhook events by canonical status.",
		}, []string{"carrier", "status"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "reminders_total",
			Help:      "Auto-release reminder outcomes.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.releaseAttempts,
		m.releaseDuration,
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.carrierEvents,
		m.reminders,
	)
	return m
}

func (m *Metrics) IncReleaseAttempt(trigger, outcome string) {
	m.releaseAttempts.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) ObserveReleaseDuration(d time.Duration) {
	m.releaseDuration.Observe(d.Seconds())
}

func (m *Metrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) IncCarrierEvent(carrier, status string) {
	m.carrierEvents.WithLabelValues(carrier, status).Inc()
}

func (m *Metrics) IncReminder(outcome string) {
	m.reminders.WithLabelValues(outcome).Inc()
}
