package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	JobsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of bulk jobs enqueued",
		},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total number of bulk jobs processed by status",
		},
		[]string{"status"}, // completed, retried, dlq, malformed
	)

	JobProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_processing_duration_seconds",
			Help:    "Duration of bulk job processing",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	DLQJobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_dlq_jobs_total",
			Help: "Total number of bulk jobs moved to the DLQ",
		},
	)
)
