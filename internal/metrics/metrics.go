package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsmith_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_generation_jobs_total",
			Help: "Total number of generation jobs by mode and terminal status.",
		},
		[]string{"mode", "status"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsmith_generation_duration_seconds",
			Help:    "Upstream generation call duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_quota_denials_total",
			Help: "Total number of admission denials by scope.",
		},
		[]string{"scope"},
	)

	LedgerWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsmith_ledger_write_failures_total",
			Help: "Total number of failed usage ledger writes (under-counted usage).",
		},
	)

	BatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_batch_runs_total",
			Help: "Total number of batch runs by outcome.",
		},
		[]string{"outcome"},
	)

	ActiveBatchRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsmith_active_batch_runs",
			Help: "Number of batch runs currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationJobsTotal,
		GenerationDuration,
		QuotaDenialsTotal,
		LedgerWriteFailuresTotal,
		BatchRunsTotal,
		ActiveBatchRuns,
	)
}
