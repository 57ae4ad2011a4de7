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
	// Transaction metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	ProgramErrors       *prometheus.CounterVec
	CommitConflicts     prometheus.Counter

	// Event metrics
	EventsEmitted    *prometheus.CounterVec
	EventStoreErrors prometheus.Counter

	// Ledger metrics
	CurrentSlot prometheus.Gauge

	// API metrics
	RPCRequests     *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	WSSubscriptions prometheus.Gauge
	WSMessagesSent  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCommit prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "membership_registry"
	}

	return &Metrics{
		// Transaction metrics
		TransactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "transactions_total",
			Help:      "Total number of submitted transactions by instruction and outcome",
		}, []string{"instruction", "outcome"}),
		TransactionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction execution duration in seconds, including commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),
		ProgramErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "program_errors_total",
			Help:      "Total number of rejected transactions by program error",
		}, []string{"error"}),
		CommitConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "commit_conflicts_total",
			Help:      "Total number of commits rejected because an observed account changed",
		}),

		// Event metrics
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total number of membership events emitted by type",
		}, []string{"event_type"}),
		EventStoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "store_errors_total",
			Help:      "Total number of committed events that failed to reach the event store",
		}),

		// Ledger metrics
		CurrentSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "current_slot",
			Help:      "Slot of the most recent commit",
		}),

		// API metrics
		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rpc_requests_total",
			Help:      "Total number of JSON-RPC requests by method and status",
		}, []string{"method", "status"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rpc_latency_seconds",
			Help:      "JSON-RPC request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_subscriptions",
			Help:      "Current number of active WebSocket subscriptions",
		}),
		WSMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_messages_sent_total",
			Help:      "Total number of WebSocket notifications sent",
		}),

		// Database metrics
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

		// Health metrics
		LastSuccessfulCommit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_commit_timestamp",
			Help:      "Unix timestamp of last committed transaction",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransaction records a finished transaction.
func RecordTransaction(instruction, outcome string, seconds float64) {
	DefaultMetrics.TransactionsTotal.WithLabelValues(instruction, outcome).Inc()
	DefaultMetrics.TransactionDuration.WithLabelValues(instruction).Observe(seconds)
}

// RecordProgramError records a transaction rejected with a program error.
func RecordProgramError(name string) {
	DefaultMetrics.ProgramErrors.WithLabelValues(name).Inc()
}

// RecordCommitConflict increments the commit conflict counter.
func RecordCommitConflict() {
	DefaultMetrics.CommitConflicts.Inc()
}

// RecordCommit updates ledger and health gauges after a commit.
func RecordCommit(slot uint64, unixSeconds int64) {
	DefaultMetrics.CurrentSlot.Set(float64(slot))
	DefaultMetrics.LastSuccessfulCommit.Set(float64(unixSeconds))
}

// RecordEventEmitted increments the events emitted counter.
func RecordEventEmitted(eventType string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEventStoreError increments the event store error counter.
func RecordEventStoreError() {
	DefaultMetrics.EventStoreErrors.Inc()
}

// RecordRPC records JSON-RPC request metrics.
func RecordRPC(method, status string, seconds float64) {
	DefaultMetrics.RPCRequests.WithLabelValues(method, status).Inc()
	DefaultMetrics.RPCLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateWSSubscriptions sets the active subscription gauge.
func UpdateWSSubscriptions(n int) {
	DefaultMetrics.WSSubscriptions.Set(float64(n))
}

// RecordWSMessageSent increments the WebSocket notification counter.
func RecordWSMessageSent() {
	DefaultMetrics.WSMessagesSent.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
