package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process's own instrument-RPC metrics, distinct from the
// Go runtime/process collectors NewRegistry adds alongside them. Grounded
// on the teacher's platform Metrics set, trimmed and relabeled for this
// domain (message subjects replaced with instruction operations).
type Metrics struct {
	RequestsReceived    *prometheus.CounterVec
	RequestsProcessed   *prometheus.CounterVec
	ProcessingDuration  *prometheus.HistogramVec
	ErrorsTotal         *prometheus.CounterVec
	BroadcastsPublished prometheus.Counter
	BroadcastsDropped   *prometheus.CounterVec

	// LockWaitDuration measures the time a handler spends blocked
	// acquiring an instrument's mutex in dispatch.Dispatcher.resolveLocked,
	// by operation. Worker-pool queue depth and utilization are not
	// duplicated here: pkg/worker's own Pool already registers
	// "dispatch_pool_queue_depth"/"dispatch_pool_utilization" gauges and
	// keeps them current via its internal metricsUpdater.
	LockWaitDuration *prometheus.HistogramVec

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics builds the metric set with the instrumentserver namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "dispatch",
			Name:      "requests_received_total",
			Help:      "Total number of instructions received, by operation.",
		}, []string{"operation"}),

		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "dispatch",
			Name:      "requests_processed_total",
			Help:      "Total number of instructions processed, by operation and outcome.",
		}, []string{"operation", "status"}),

		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "instrumentserver",
			Subsystem: "dispatch",
			Name:      "processing_duration_seconds",
			Help:      "Instruction handling duration in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Total number of instructions that ended in an error, by kind.",
		}, []string{"kind"}),

		BroadcastsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "transport",
			Name:      "broadcasts_published_total",
			Help:      "Total number of broadcast events published.",
		}),
		BroadcastsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "transport",
			Name:      "broadcasts_dropped_total",
			Help:      "Total number of broadcast events dropped before reaching NATS, by reason.",
		}, []string{"reason"}),

		LockWaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "instrumentserver",
			Subsystem: "dispatch",
			Name:      "lock_wait_duration_seconds",
			Help:      "Time handlers spend waiting to acquire an instrument's lock, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "instrumentserver",
			Subsystem: "transport",
			Name:      "nats_connected",
			Help:      "NATS connection status (0=disconnected, 1=connected).",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "instrumentserver",
			Subsystem: "transport",
			Name:      "nats_reconnects_total",
			Help:      "Total number of NATS reconnections.",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "instrumentserver",
			Subsystem: "transport",
			Name:      "nats_circuit_breaker",
			Help:      "NATS client circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),
	}
}

// RecordRequest records a completed instruction's outcome and latency.
func (m *Metrics) RecordRequest(operation, status string, seconds float64) {
	m.RequestsProcessed.WithLabelValues(operation, status).Inc()
	m.ProcessingDuration.WithLabelValues(operation).Observe(seconds)
}
