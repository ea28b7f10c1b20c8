package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PolicyDecisions counts visibility policy evaluations by action and outcome (allow|deny).
	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataroom_policy_decisions_total",
			Help: "Total number of visibility policy decisions",
		},
		[]string{"action", "result"},
	)

	// URLsIssued counts secure URLs minted by mode and watermark application.
	URLsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataroom_urls_issued_total",
			Help: "Total number of secure document URLs issued",
		},
		[]string{"mode", "watermarked"},
	)

	// AuditWriteFailures surfaces audit log writes that failed while the
	// service was configured to favour availability over audit completeness.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataroom_audit_write_failures_total",
			Help: "Total number of audit entries that could not be persisted",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataroom_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
