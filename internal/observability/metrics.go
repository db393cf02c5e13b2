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
	// Submission metrics
	TransfersSubmitted *prometheus.CounterVec
	TransferRetries    prometheus.Counter
	ConfirmLatency     prometheus.Histogram

	// Gate metrics
	EntriesRegistered    prometheus.Counter
	VerificationFailures *prometheus.CounterVec
	ReplayRejections     prometheus.Counter
	BalanceReadFailures  prometheus.Counter

	// Oracle metrics
	OracleFetches     *prometheus.CounterVec
	OracleStaleServes prometheus.Counter

	// Settlement metrics
	PayoutsExecuted          *prometheus.CounterVec
	LastSuccessfulSettlement prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "portsol_gate"
	}

	return &Metrics{
		TransfersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "transfers_submitted_total",
			Help:      "Total number of transfer submissions by result",
		}, []string{"result"}),
		TransferRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "transfer_retries_total",
			Help:      "Total number of transfer retry attempts",
		}),
		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "confirm_latency_seconds",
			Help:      "Time from send to confirmation in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		EntriesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "entries_registered_total",
			Help:      "Total number of admissions registered",
		}),
		VerificationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "verification_failures_total",
			Help:      "Total number of payment verification rejections by reason",
		}, []string{"reason"}),
		ReplayRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "replay_rejections_total",
			Help:      "Total number of registrations rejected for a consumed signature",
		}),
		BalanceReadFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "balance_read_failures_total",
			Help:      "Total number of balance reads that failed soft to zero",
		}),

		OracleFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetches_total",
			Help:      "Total number of price feed fetches by result",
		}, []string{"result"}),
		OracleStaleServes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "stale_serves_total",
			Help:      "Total number of reads served from an expired cache entry",
		}),

		PayoutsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "payouts_executed_total",
			Help:      "Total number of payout executions by status",
		}, []string{"status"}),
		LastSuccessfulSettlement: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last fully successful settlement run",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransferSubmitted increments the transfer counter for a result.
func RecordTransferSubmitted(result string) {
	DefaultMetrics.TransfersSubmitted.WithLabelValues(result).Inc()
}

// RecordTransferRetry increments the retry counter.
func RecordTransferRetry() {
	DefaultMetrics.TransferRetries.Inc()
}

// RecordEntryRegistered increments the admissions counter.
func RecordEntryRegistered() {
	DefaultMetrics.EntriesRegistered.Inc()
}

// RecordVerificationFailure records a payment verification rejection.
func RecordVerificationFailure(reason string) {
	DefaultMetrics.VerificationFailures.WithLabelValues(reason).Inc()
}

// RecordReplayRejection increments the replay rejection counter.
func RecordReplayRejection() {
	DefaultMetrics.ReplayRejections.Inc()
}

// RecordBalanceReadFailure increments the fail-soft balance read counter.
func RecordBalanceReadFailure() {
	DefaultMetrics.BalanceReadFailures.Inc()
}

// RecordOracleFetch records a price fetch attempt result.
func RecordOracleFetch(result string) {
	DefaultMetrics.OracleFetches.WithLabelValues(result).Inc()
}

// RecordOracleStaleServe increments the stale serve counter.
func RecordOracleStaleServe() {
	DefaultMetrics.OracleStaleServes.Inc()
}

// RecordPayout records a payout execution status.
func RecordPayout(status string) {
	DefaultMetrics.PayoutsExecuted.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
