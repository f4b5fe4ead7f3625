// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	CandidatesReceived prometheus.Counter

	// Risk gate metrics
	RiskDecisions       *prometheus.CounterVec
	RiskCheckOutcomes   *prometheus.CounterVec
	RiskEvaluationTime  prometheus.Histogram
	ObservationOutcomes *prometheus.CounterVec

	// Execution metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	QueueLength       prometheus.Gauge
	Executing         prometheus.Gauge

	// Monitor metrics
	ActiveMonitors     prometheus.Gauge
	CheckpointFailures *prometheus.CounterVec
	EmergencyExits     *prometheus.CounterVec

	// Bookkeeping metrics
	ReconciliationPending prometheus.Gauge
	CorruptionFlags       prometheus.Counter

	// Latency metrics
	RPCCallLatency      *prometheus.HistogramVec
	ExternalCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_entry_gate"
	}

	return &Metrics{
		CandidatesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candidates_received_total",
			Help:      "Total number of candidates received from the discovery feed",
		}),

		RiskDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "decisions_total",
			Help:      "Risk gate decisions by outcome",
		}, []string{"outcome"}),
		RiskCheckOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "check_outcomes_total",
			Help:      "Individual risk check outcomes",
		}, []string{"check", "outcome"}),
		RiskEvaluationTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "evaluation_seconds",
			Help:      "Risk gate evaluation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		ObservationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observation",
			Name:      "outcomes_total",
			Help:      "Observation window outcomes",
		}, []string{"outcome"}),

		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "total",
			Help:      "Executions by direction and terminal state",
		}, []string{"direction", "state"}),
		ExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Execution duration from quote to terminal state",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"direction"}),
		QueueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "queue_length",
			Help:      "Candidates waiting for execution",
		}),
		Executing: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "executing",
			Help:      "1 while an execution is in flight",
		}),

		ActiveMonitors: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active_sessions",
			Help:      "Post-entry monitor sessions in progress",
		}),
		CheckpointFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "checkpoint_failures_total",
			Help:      "Failed checkpoints by index",
		}, []string{"checkpoint"}),
		EmergencyExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "emergency_exits_total",
			Help:      "Emergency exits by sell outcome",
		}, []string{"state"}),

		ReconciliationPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bookkeeping",
			Name:      "reconciliation_pending",
			Help:      "Confirmed trades whose persistence failed",
		}),
		CorruptionFlags: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookkeeping",
			Name:      "corruption_flags_total",
			Help:      "On-chain results flagged as implausible",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ExternalCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_latency_seconds",
			Help:      "External service call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCandidateReceived increments the feed counter.
func RecordCandidateReceived() {
	DefaultMetrics.CandidatesReceived.Inc()
}

// RecordRiskDecision records an aggregate decision and its duration.
func RecordRiskDecision(admitted, hardBlocked bool, seconds float64) {
	outcome := "admitted"
	switch {
	case hardBlocked:
		outcome = "hard_blocked"
	case !admitted:
		outcome = "rejected"
	}
	DefaultMetrics.RiskDecisions.WithLabelValues(outcome).Inc()
	DefaultMetrics.RiskEvaluationTime.Observe(seconds)
}

// RecordRiskCheck records one check outcome.
func RecordRiskCheck(check string, passed, hardBlock bool) {
	outcome := "passed"
	switch {
	case hardBlock:
		outcome = "hard_block"
	case !passed:
		outcome = "failed"
	}
	DefaultMetrics.RiskCheckOutcomes.WithLabelValues(check, outcome).Inc()
}

// RecordObservation records an observation window outcome.
func RecordObservation(outcome string) {
	DefaultMetrics.ObservationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordExecution records a terminal execution state.
func RecordExecution(direction, state string, seconds float64) {
	DefaultMetrics.Executions.WithLabelValues(direction, state).Inc()
	DefaultMetrics.ExecutionDuration.WithLabelValues(direction).Observe(seconds)
}

// UpdateQueue updates the queue gauges.
func UpdateQueue(length int, executing bool) {
	DefaultMetrics.QueueLength.Set(float64(length))
	if executing {
		DefaultMetrics.Executing.Set(1)
	} else {
		DefaultMetrics.Executing.Set(0)
	}
}

// UpdateActiveMonitors sets the active monitor gauge.
func UpdateActiveMonitors(n int) {
	DefaultMetrics.ActiveMonitors.Set(float64(n))
}

// RecordCheckpointFailure records a failed checkpoint.
func RecordCheckpointFailure(checkpoint string) {
	DefaultMetrics.CheckpointFailures.WithLabelValues(checkpoint).Inc()
}

// RecordEmergencyExit records an emergency exit and the sell outcome.
func RecordEmergencyExit(state string) {
	DefaultMetrics.EmergencyExits.WithLabelValues(state).Inc()
}

// UpdateReconciliationPending sets the reconciliation gauge.
func UpdateReconciliationPending(n int) {
	DefaultMetrics.ReconciliationPending.Set(float64(n))
}

// RecordCorruptionFlag increments the corruption counter.
func RecordCorruptionFlag() {
	DefaultMetrics.CorruptionFlags.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordExternalCall records latency of a call to an external HTTP service.
func RecordExternalCall(service, operation string, seconds float64) {
	DefaultMetrics.ExternalCallLatency.WithLabelValues(service, operation).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
