package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/auth"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

// MailService is the mailer surface the API drives.
type MailService interface {
	SendSingle(ctx context.Context, to, subject, html, preferred string) (mailer.SendResult, error)
	Status() mailer.Status
	Refresh(ctx context.Context) error
}

// ProviderRegistry is the provider CRUD and stats surface.
type ProviderRegistry interface {
	Add(ctx context.Context, req registry.AddRequest) (registry.Provider, error)
	Update(ctx context.Context, name string, u registry.Update) (registry.Provider, error)
	Remove(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) (registry.Provider, error)
	Disable(ctx context.Context, name string) (registry.Provider, error)
	Get(ctx context.Context, name string) (registry.Provider, error)
	List(ctx context.Context, enabledOnly bool) ([]registry.Provider, error)
	Stats(ctx context.Context, name string, days int) (registry.Stats, error)
	HealthCheck(ctx context.Context) registry.HealthReport
}

// ReportArchive stores bulk job records.
type ReportArchive interface {
	Save(ctx context.Context, rec reportstore.Record) error
	Load(ctx context.Context, jobID string) (reportstore.Record, error)
}

// Pinger reports backing store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything the router wires into handlers. Registry, Queue,
// DLQ, Reports and RateLimiter are optional; their routes are only mounted
// when set. A nil Keys disables authentication. Checks are the named
// dependencies /readyz probes.
type Deps struct {
	Mailer      MailService
	Registry    ProviderRegistry
	Queue       queue.Enqueuer
	DLQ         DeadLetters
	Reports     ReportArchive
	Checks      map[string]Pinger
	Keys        auth.KeyVerifier
	RateLimiter *auth.RateLimiter
	Log         zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestLogger(d.Log))
	r.Use(RecoverMiddleware)
	r.Use(MetricsMiddleware)

	// Health endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Checks, d.Mailer))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if d.Keys != nil {
			r.Use(auth.BearerAuth(d.Keys))
		}
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware(d.Log))
		}

		// Mailer
		r.Get("/status", StatusHandler(d.Mailer, d.Registry))
		r.Post("/send", SendHandler(d.Mailer))
		if d.Queue != nil {
			r.Post("/bulk", BulkHandler(d.Queue, d.Reports))
		}
		if d.Reports != nil {
			r.Get("/reports/{id}", ReportHandler(d.Reports))
		}

		// Providers
		r.Get("/provider-templates", ProviderTemplatesHandler())
		r.Post("/providers/reload", ReloadProvidersHandler(d.Mailer))
		if d.Registry != nil {
			r.Get("/providers", ListProvidersHandler(d.Registry))
			r.Post("/providers", CreateProviderHandler(d.Registry, d.Mailer))
			r.Get("/providers/{name}", GetProviderHandler(d.Registry))
			r.Put("/providers/{name}", UpdateProviderHandler(d.Registry, d.Mailer))
			r.Delete("/providers/{name}", DeleteProviderHandler(d.Registry, d.Mailer))
			r.Post("/providers/{name}/enable", SetProviderEnabledHandler(d.Registry, d.Mailer, true))
			r.Post("/providers/{name}/disable", SetProviderEnabledHandler(d.Registry, d.Mailer, false))
			r.Get("/providers/{name}/stats", ProviderStatsHandler(d.Registry))
		}

		// Dead letters
		if d.DLQ != nil {
			r.Get("/dlq", DeadJobsHandler(d.DLQ))
			r.Post("/dlq/reprocess", ReprocessHandler(d.DLQ))
		}
	})

	return r
}
