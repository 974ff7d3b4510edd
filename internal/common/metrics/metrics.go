// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	MatchCandidatesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_candidates_evaluated_total",
			Help: "Total number of candidates evaluated, by confidence tier",
		},
		[]string{"tier"},
	)

	MatchCandidateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "match_candidate_failures_total",
			Help: "Total number of candidates dropped because evaluation failed",
		},
	)

	MatchBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_batch_duration_seconds",
			Help:    "Duration of one batch match run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	MatchExplanations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_explanations_total",
			Help: "Total number of explanations attached, by source",
		},
		[]string{"source"},
	)
)
