package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	registryExec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshd",
			Subsystem: "registry",
			Name:      "exec_total",
			Help:      "Registry command executions by outcome.",
		},
		[]string{"command", "outcome"},
	)
	registryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshd",
			Subsystem: "registry",
			Name:      "exec_duration_seconds",
			Help:      "Registry command execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshd",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Client RPC calls by outcome.",
		},
		[]string{"method", "outcome"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Exec outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Stand-in label values for caller-supplied names that match nothing, so
// a client cannot mint series.
const (
	UnknownCommand = "_unknown"
	UnmatchedPath  = "unmatched"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(registryExec, registryDuration, rpcCalls, httpRequests, httpDuration)
	})
}

func RecordExec(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	registryExec.WithLabelValues(command, outcome).Inc()
	registryDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordRPC(method, outcome string) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(method, outcome).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
