// Package metrics registers the Prometheus collectors shared by the operator
// server and the coordinator. Collectors live in the default registry and are
// served by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vectorvault"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
)

var (
	// operatorRequests counts requests handled by an operator server.
	// Labels: kind (create, read, update, delete), status (HTTP status class)
	operatorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "operator",
		Name:      "requests_total",
		Help:      "Operator requests by operation kind and status",
	}, []string{"kind", "status"})

	// operatorLatency measures time spent serving a request.
	// Labels: kind
	operatorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "operator",
		Name:      "request_duration_seconds",
		Help:      "Operator request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"kind"})

	// auditOperations counts audited operations on the coordinator.
	// Labels: kind, result (success, failure, timeout)
	auditOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "operations_total",
		Help:      "Audited operator operations by kind and result",
	}, []string{"kind", "result"})

	// auditLatency measures round trip time of an audited operation.
	// Labels: kind
	auditLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "operation_duration_seconds",
		Help:      "Round trip latency of audited operations in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"kind"})

	// cycleReward tracks the distribution of per-cycle rewards.
	cycleReward = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "cycle_reward",
		Help:      "Distribution of per-cycle operator rewards",
		Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// accountedStorage is the storage counter of the most recent round.
	accountedStorage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "accounted_storage_bytes",
		Help:      "Estimated bytes stored across operators in the last round",
	})
)

// ObserveOperatorRequest records one served operator request.
func ObserveOperatorRequest(kind string, status int, elapsed time.Duration) {
	operatorRequests.WithLabelValues(kind, statusClass(status)).Inc()
	operatorLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveOperation records one audited operation.
func ObserveOperation(kind, result string, elapsed time.Duration) {
	auditOperations.WithLabelValues(kind, result).Inc()
	auditLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveReward records a folded cycle reward.
func ObserveReward(reward float64) {
	cycleReward.Observe(reward)
}

// SetAccountedStorage publishes the storage counter of a finished round.
func SetAccountedStorage(bytes int64) {
	accountedStorage.Set(float64(bytes))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
