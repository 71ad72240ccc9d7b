package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdlp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdlp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	linkActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdlp",
			Subsystem: "gateway",
			Name:      "link_actions_total",
			Help:      "Device-initiated link actions requested over HTTP, by outcome.",
		},
		[]string{"node", "action", "outcome"},
	)
	linkSegments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdlp",
			Subsystem: "link",
			Name:      "segments_total",
			Help:      "Link segments by direction.",
		},
		[]string{"direction"},
	)
	linkNacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdlp",
			Subsystem: "link",
			Name:      "nacks_total",
			Help:      "NACK indications by service and result code.",
		},
		[]string{"service", "result"},
	)
	linkTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdlp",
			Subsystem: "link",
			Name:      "transactions_total",
			Help:      "Finished link transactions by outcome.",
		},
		[]string{"outcome"},
	)
	linkTransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdlp",
			Subsystem: "link",
			Name:      "transaction_duration_seconds",
			Help:      "Time from first segment to reset.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	linkConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdlp",
			Subsystem: "link",
			Name:      "connections",
			Help:      "Open link connections.",
		},
	)
)

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkActions,
			linkSegments,
			linkNacks,
			linkTransactions,
			linkTransactionDuration,
			linkConnections,
		)
	})
}

// RecordHTTPRequest observes one request by route template and status.
func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordLinkAction counts one device-initiated action such as "operation"
// or "sensor" with its outcome ("accepted", "busy", "unknown_connection"...).
func RecordLinkAction(node, action, outcome string) {
	RegisterMetrics()
	linkActions.WithLabelValues(node, action, outcome).Inc()
}

// RecordSegment counts one segment; direction is "in" or "out".
func RecordSegment(direction string) {
	RegisterMetrics()
	linkSegments.WithLabelValues(direction).Inc()
}

// RecordNack counts one NACK indication.
func RecordNack(service, result string) {
	RegisterMetrics()
	linkNacks.WithLabelValues(service, result).Inc()
}

// RecordTransaction observes a transaction that ended with outcome
// ("completed", "nacked", "timeout", "disconnected").
func RecordTransaction(outcome string, duration time.Duration) {
	RegisterMetrics()
	linkTransactions.WithLabelValues(outcome).Inc()
	linkTransactionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConnection moves the open connection gauge by delta.
func RecordConnection(delta int) {
	RegisterMetrics()
	linkConnections.Add(float64(delta))
}
