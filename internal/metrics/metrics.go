package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benestar_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_quota_decisions_total",
			Help: "Quota decisions by feature kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	QuotaConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_quota_conflicts_total",
			Help: "Counter store write conflicts that triggered a retry.",
		},
		[]string{"kind"},
	)

	QuotaTransientFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_quota_transient_failures_total",
			Help: "Quota checks that failed because the counter store could not commit.",
		},
		[]string{"kind"},
	)

	QuotaEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_quota_events_dropped_total",
			Help: "Denial events dropped because the notification queue was full.",
		},
		[]string{"kind"},
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benestar_ai_completions_total",
			Help: "Calls to the generative-language API by feature and status.",
		},
		[]string{"feature", "status"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benestar_ai_completion_duration_seconds",
			Help:    "Latency of generative-language API calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"feature"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaDecisionsTotal,
		QuotaConflictsTotal,
		QuotaTransientFailuresTotal,
		QuotaEventsDroppedTotal,
		CompletionsTotal,
		CompletionDuration,
	)
}
