// Package metrics exports the client's Prometheus metrics.
// Collectors are registered with the default registry on package load.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// The POSIX process that emits metrics
const ledgerProcess = "ledgerclient"

const (
	rpcRequestsTotalMetric    = "rpc_requests_total"
	rpcDurationSecondsMetric  = "rpc_duration_seconds"
	admissionsTotalMetric     = "pool_admissions_total"
	admittedEndpointsMetric   = "pool_admitted_endpoints"
	rotationsTotalMetric      = "pool_rotations_total"
	sanctionsTotalMetric      = "pool_sanctions_total"
	retryAttemptsTotalMetric  = "retry_attempts_total"
	retryExhaustedTotalMetric = "retry_exhausted_total"
	batchReadsTotalMetric     = "batch_reads_total"
	batchCallsMetric          = "batch_calls"
	recordCacheLookupsMetric  = "record_cache_lookups_total"
	activeRecordFetchesMetric = "record_fetches_active"
	txOutcomesTotalMetric     = "tx_outcomes_total"
	txDurationSecondsMetric   = "tx_duration_seconds"
	notificationsFailedMetric = "notifications_failed_total"
)

func init() {
	prometheus.MustRegister(rpcRequestsTotal)
	prometheus.MustRegister(rpcDurationSeconds)
	prometheus.MustRegister(admissionsTotal)
	prometheus.MustRegister(admittedEndpoints)
	prometheus.MustRegister(rotationsTotal)
	prometheus.MustRegister(sanctionsTotal)
	prometheus.MustRegister(retryAttemptsTotal)
	prometheus.MustRegister(retryExhaustedTotal)
	prometheus.MustRegister(batchReadsTotal)
	prometheus.MustRegister(batchCalls)
	prometheus.MustRegister(recordCacheLookups)
	prometheus.MustRegister(activeRecordFetches)
	prometheus.MustRegister(txOutcomesTotal)
	prometheus.MustRegister(txDurationSeconds)
	prometheus.MustRegister(notificationsFailed)
}

var (
	// rpcRequestsTotal counts JSON-RPC requests sent to endpoints.
	// Labels:
	//   - endpoint_host: host of the endpoint URL (never the full URL, which may embed an API key)
	//   - method: JSON-RPC method
	//   - error_kind: classified failure, empty on success
	rpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      rpcRequestsTotalMetric,
			Help:      "Total number of JSON-RPC requests sent to endpoints.",
		},
		[]string{"endpoint_host", "method", "error_kind"},
	)

	// rpcDurationSeconds measures JSON-RPC round trips.
	// Buckets span local nodes (tens of ms) to the remote admission budget (8s).
	rpcDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: ledgerProcess,
			Name:      rpcDurationSecondsMetric,
			Help:      "Histogram of JSON-RPC request durations in seconds.",
			Buckets:   []float64{0.025, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	// admissionsTotal counts admission checks by result.
	// Labels:
	//   - result: "admitted" or the rejection reason (an error kind)
	admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      admissionsTotalMetric,
			Help:      "Total number of endpoint admission checks, labeled by result.",
		},
		[]string{"result"},
	)

	admittedEndpoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: ledgerProcess,
			Name:      admittedEndpointsMetric,
			Help:      "Number of endpoints currently admitted to the pool.",
		},
	)

	rotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      rotationsTotalMetric,
			Help:      "Total number of pool rotations, labeled by whether they advanced the cursor.",
		},
		[]string{"advanced"},
	)

	sanctionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      sanctionsTotalMetric,
			Help:      "Total number of endpoint demotions after consecutive failures.",
		},
		[]string{"endpoint_host"},
	)

	// retryAttemptsTotal counts read attempts by outcome.
	// Labels:
	//   - outcome: "success", "retried" or "returned"
	retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      retryAttemptsTotalMetric,
			Help:      "Total number of read attempts made by the retry executor, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	retryExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      retryExhaustedTotalMetric,
			Help:      "Total number of reads that failed on every allowed attempt.",
		},
	)

	// batchReadsTotal counts batch reads by path taken.
	// Labels:
	//   - path: "aggregate", "unavailable" or "fallback"
	batchReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      batchReadsTotalMetric,
			Help:      "Total number of batch reads, labeled by the path taken.",
		},
		[]string{"path"},
	)

	batchCalls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: ledgerProcess,
			Name:      batchCallsMetric,
			Help:      "Histogram of the number of calls per batch read.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		},
	)

	// recordCacheLookups counts paginator cache lookups.
	// Labels:
	//   - result: "hit" or "miss"
	recordCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      recordCacheLookupsMetric,
			Help:      "Total number of record cache lookups, labeled by result.",
		},
		[]string{"result"},
	)

	activeRecordFetches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: ledgerProcess,
			Name:      activeRecordFetchesMetric,
			Help:      "Number of record fetches currently in flight.",
		},
	)

	// txOutcomesTotal counts terminal write outcomes.
	// Labels:
	//   - operation: caller-supplied operation name
	//   - outcome: "confirmed" or an outcome error kind
	txOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      txOutcomesTotalMetric,
			Help:      "Total number of write operations by terminal outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// txDurationSeconds measures the time from submission to a terminal outcome.
	txDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: ledgerProcess,
			Name:      txDurationSecondsMetric,
			Help:      "Histogram of write durations from submission to terminal outcome, in seconds.",
			Buckets:   []float64{1, 5, 12, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	notificationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ledgerProcess,
			Name:      notificationsFailedMetric,
			Help:      "Total number of lifecycle notifications that could not be delivered.",
		},
		[]string{"notifier"},
	)
)

// ObserveRPC records one JSON-RPC round trip.
func ObserveRPC(endpointHost, method string, kind protocol.ErrorKind, duration time.Duration) {
	rpcRequestsTotal.With(prometheus.Labels{
		"endpoint_host": endpointHost,
		"method":        method,
		"error_kind":    string(kind),
	}).Inc()

	rpcDurationSeconds.With(prometheus.Labels{"method": method}).Observe(duration.Seconds())
}

// ObserveAdmission records one admission check. An empty reason means the endpoint was admitted.
func ObserveAdmission(reason protocol.ErrorKind) {
	result := string(reason)
	if reason == "" {
		result = "admitted"
	}
	admissionsTotal.With(prometheus.Labels{"result": result}).Inc()
}

func SetAdmittedEndpoints(count int) {
	admittedEndpoints.Set(float64(count))
}

func ObserveRotation(advanced bool) {
	label := "false"
	if advanced {
		label = "true"
	}
	rotationsTotal.With(prometheus.Labels{"advanced": label}).Inc()
}

func ObserveSanction(endpointHost string) {
	sanctionsTotal.With(prometheus.Labels{"endpoint_host": endpointHost}).Inc()
}

func ObserveRetryAttempt(outcome string) {
	retryAttemptsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func ObserveRetryExhausted() {
	retryExhaustedTotal.Inc()
}

func ObserveBatchRead(path string, calls int) {
	batchReadsTotal.With(prometheus.Labels{"path": path}).Inc()
	batchCalls.Observe(float64(calls))
}

func ObserveRecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	recordCacheLookups.With(prometheus.Labels{"result": result}).Inc()
}

func SetActiveRecordFetches(active int64) {
	activeRecordFetches.Set(float64(active))
}

// ObserveTxOutcome records a terminal write outcome. An empty kind means the write was confirmed.
func ObserveTxOutcome(operation string, kind protocol.ErrorKind, duration time.Duration) {
	outcome := string(kind)
	if kind == "" {
		outcome = "confirmed"
	}
	txOutcomesTotal.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
	txDurationSeconds.With(prometheus.Labels{"outcome": outcome}).Observe(duration.Seconds())
}

func ObserveNotificationFailure(notifier string) {
	notificationsFailed.With(prometheus.Labels{"notifier": notifier}).Inc()
}
