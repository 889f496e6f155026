package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mailer metrics
var (
	SendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_send_attempts_total",
			Help: "Total number of delivery attempts by provider and outcome",
		},
		[]string{"provider", "outcome"}, // delivered, rejected, transport_error
	)

	SendAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailer_send_attempt_duration_seconds",
			Help:    "Duration of single delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SendResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_send_results_total",
			Help: "Total number of per-recipient send results",
		},
		[]string{"result"}, // sent, failed
	)

	RateLimitWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_rate_limit_waits_total",
			Help: "Total number of HTTP 429 waits by provider",
		},
		[]string{"provider"},
	)

	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailer_provider_healthy",
			Help: "Whether a provider is currently eligible for use (1) or suspended (0)",
		},
		[]string{"provider"},
	)

	BulkSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_bulk_sends_total",
			Help: "Total number of bulk sends by completion status",
		},
		[]string{"status"}, // completed, cancelled
	)

	BulkSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailer_bulk_send_duration_seconds",
			Help:    "Duration of bulk sends",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	StatsSinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_stats_sink_errors_total",
			Help: "Total number of failed provider stats updates",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"query"},
	)
)

// Queue metrics
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of bulk jobs in queue by status",
		},
		[]string{"status"}, // pending, dlq
	)
)

// SMTP submission metrics
var (
	SMTPConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_connections_total",
			Help: "Total number of SMTP connections",
		},
		[]string{"status"}, // accepted, rejected
	)

	SMTPActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smtp_active_sessions",
			Help: "Number of currently active SMTP sessions",
		},
	)

	SMTPAuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_auth_attempts_total",
			Help: "Total number of SMTP authentication attempts",
		},
		[]string{"result"}, // success, failure
	)

	SMTPMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_messages_total",
			Help: "Total number of messages submitted over SMTP by result",
		},
		[]string{"result"}, // relayed, partial, deferred, rejected
	)
)
