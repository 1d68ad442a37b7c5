package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool metrics
var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telecine_jobs_submitted_total",
			Help: "Total number of jobs accepted by a worker pool",
		},
		[]string{"phase"},
	)

	JobsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telecine_jobs_duplicate_total",
			Help: "Total number of submissions rejected as duplicates",
		},
		[]string{"phase"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telecine_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status",
		},
		[]string{"phase", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telecine_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telecine_pool_queue_depth",
			Help: "Jobs buffered in a pool queue, not yet picked up by a worker",
		},
		[]string{"phase"},
	)

	JobsExecuting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telecine_pool_jobs_executing",
			Help: "Jobs currently occupying a worker",
		},
		[]string{"phase"},
	)

	JobsReclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telecine_jobs_reclaimed_total",
			Help: "Jobs returned unexecuted during graceful shutdown",
		},
		[]string{"phase"},
	)
)

// Pipeline metrics
var (
	PipelinesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telecine_pipelines_completed_total",
			Help: "Total number of scenes whose configured pipeline finished",
		},
	)

	FingerprintMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telecine_fingerprint_matches_total",
			Help: "Total number of candidate duplicate matches after deduplication",
		},
	)
)
