// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// stageBuckets spans 10µs to ~160ms; the latency budget lives in the low milliseconds.
var stageBuckets = prometheus.ExponentialBuckets(0.00001, 2, 15)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	EventsTotal      *prometheus.CounterVec
	EventsIgnored    *prometheus.CounterVec
	SignalsTotal     prometheus.Counter
	SimulationsTotal *prometheus.CounterVec
	LookupFailures   *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec

	// State metrics
	PositionsTracked prometheus.Gauge
	QueueDepth       prometheus.Gauge
	QueueWait        prometheus.Histogram

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	BreakerState   *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Run metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	ReportsGenerated prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "liquidation_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Classified protocol events by action",
		}, []string{"action"}),
		EventsIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_ignored_total",
			Help:      "Events dropped before detection by reason",
		}, []string{"reason"}),
		SignalsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "signals_total",
			Help:      "Liquidation signals emitted",
		}),
		SimulationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "simulations_total",
			Help:      "Profitability simulations by result",
		}, []string{"result"}),
		LookupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "lookup_failures_total",
			Help:      "Failed external lookups by source",
		}, []string{"source"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Per-stage pipeline latency in seconds",
			Buckets:   stageBuckets,
		}, []string{"stage"}),

		PositionsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "positions_tracked",
			Help:      "Accounts currently held in the position store",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "queue_depth",
			Help:      "Events waiting in the ingestion queue",
		}),
		QueueWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "queue_wait_seconds",
			Help:      "Time from wire arrival to pipeline dequeue",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12),
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Completed runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Run wall time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"mode"}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordEvent counts a classified event.
func RecordEvent(action string) {
	DefaultMetrics.EventsTotal.WithLabelValues(action).Inc()
}

// RecordIgnored counts an event dropped on the fast-reject path.
func RecordIgnored(reason string) {
	DefaultMetrics.EventsIgnored.WithLabelValues(reason).Inc()
}

// RecordSignal counts an emitted signal.
func RecordSignal() {
	DefaultMetrics.SignalsTotal.Inc()
}

// RecordSimulation counts a simulation outcome: "profitable", "unprofitable" or "error".
func RecordSimulation(result string) {
	DefaultMetrics.SimulationsTotal.WithLabelValues(result).Inc()
}

// RecordLookupFailure counts a failed external lookup.
func RecordLookupFailure(source string) {
	DefaultMetrics.LookupFailures.WithLabelValues(source).Inc()
}

// RecordStageLatency observes one derived stage duration.
func RecordStageLatency(stage string, seconds float64) {
	DefaultMetrics.StageLatency.WithLabelValues(stage).Observe(seconds)
}

// UpdatePositionsTracked sets the tracked-accounts gauge.
func UpdatePositionsTracked(n int) {
	DefaultMetrics.PositionsTracked.Set(float64(n))
}

// UpdateQueueDepth sets the ingestion queue gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordQueueWait observes how long a live event sat in buffers before
// detection started. It is not part of any stage latency.
func RecordQueueWait(seconds float64) {
	DefaultMetrics.QueueWait.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateBreakerState records a circuit breaker transition.
func UpdateBreakerState(name string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordRun records a completed run.
func RecordRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordReport counts a generated report.
func RecordReport() {
	DefaultMetrics.ReportsGenerated.Inc()
}
