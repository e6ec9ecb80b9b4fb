package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the convergence engine. A nil
// *Metrics is usable; every method is a no-op on a disabled instance.
type Metrics struct {
	config MetricsConfig

	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	unitDecisions *prometheus.CounterVec
	unitFailures  *prometheus.CounterVec

	backupsTaken prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "hardenctl"
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Completed runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		unitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_decisions_total",
			Help:      "Decision engine verdicts by unit kind and action.",
		}, []string{"kind", "action"}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_failures_total",
			Help:      "Mutator failures by unit kind.",
		}, []string{"kind"}),
		backupsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_taken_total",
			Help:      "Pre-mutation snapshots written.",
		}),
	}

	m.registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.unitDecisions,
		m.unitFailures,
		m.backupsTaken,
	)
	return m
}

// Registry exposes the underlying registry for embedding in a scrape
// endpoint by callers that run the engine as a library.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	if m == nil || m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// CountDecision records one decision engine verdict.
func (m *Metrics) CountDecision(kind, action string) {
	if m == nil || m.registry == nil {
		return
	}
	m.unitDecisions.WithLabelValues(kind, action).Inc()
}

// CountUnitFailure records one mutator failure.
func (m *Metrics) CountUnitFailure(kind string) {
	if m == nil || m.registry == nil {
		return
	}
	m.unitFailures.WithLabelValues(kind).Inc()
}

// CountBackup records one snapshot.
func (m *Metrics) CountBackup() {
	if m == nil || m.registry == nil {
		return
	}
	m.backupsTaken.Inc()
}
