package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

// statusResponse is the JSON response for GET /api/v1/status.
type statusResponse struct {
	Mailer    mailer.Status          `json:"mailer"`
	Providers *registry.HealthReport `json:"providers,omitempty"`
}

// StatusHandler handles GET /api/v1/status. The registry section is present
// only when a registry is configured.
func StatusHandler(svc MailService, reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Mailer: svc.Status()}
		if reg != nil {
			report := reg.HealthCheck(r.Context())
			resp.Providers = &report
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// sendRequest is the JSON body for POST /api/v1/send.
type sendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Provider string `json:"provider"`
}

func (req sendRequest) validate() []string {
	var errs []string
	if _, err := mail.ParseAddress(req.To); err != nil {
		errs = append(errs, "to must be a valid email address")
	}
	if strings.TrimSpace(req.Subject) == "" {
		errs = append(errs, "subject is required")
	}
	if strings.TrimSpace(req.HTML) == "" {
		errs = append(errs, "html is required")
	}
	return errs
}

// SendHandler handles POST /api/v1/send. A delivery failure is still a 200
// with success=false; only a missing provider set is a 503.
func SendHandler(svc MailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := decodeJSON(r, w, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		res, err := svc.SendSingle(r.Context(), req.To, req.Subject, req.HTML, req.Provider)
		if err != nil {
			if errors.Is(err, mailer.ErrNoProviders) {
				respondError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("to", req.To).Msg("single send aborted")
			respondError(w, http.StatusInternalServerError, "send aborted")
			return
		}

		respondJSON(w, http.StatusOK, res)
	}
}

// bulkRequest is the JSON body for POST /api/v1/bulk.
type bulkRequest struct {
	Subject             string             `json:"subject"`
	HTML                string             `json:"html"`
	Recipients          []mailer.Recipient `json:"recipients"`
	Provider            string             `json:"provider"`
	BatchSize           int                `json:"batch_size"`
	Concurrency         int                `json:"concurrency"`
	SkipPersonalization bool               `json:"skip_personalization"`
}

// bulkResponse is the JSON response for an accepted bulk job.
type bulkResponse struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Recipients int    `json:"recipients"`
}

// BulkHandler handles POST /api/v1/bulk. The job is queued and answered with
// 202; the report becomes available under /api/v1/reports/{id}.
func BulkHandler(q queue.Enqueuer, reports ReportArchive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req bulkRequest
		if err := decodeJSON(r, w, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		job := queue.NewJob(req.Subject, req.HTML, req.Recipients)
		job.Provider = req.Provider
		job.BatchSize = req.BatchSize
		job.Concurrency = req.Concurrency
		job.SkipPersonalization = req.SkipPersonalization
		if err := job.Validate(); err != nil {
			respondValidationErrors(w, []string{err.Error()})
			return
		}

		// The record goes first so a fast worker always finds it.
		if reports != nil {
			if err := reports.Save(r.Context(), reportstore.Record{
				JobID:      job.ID,
				Status:     reportstore.StatusQueued,
				Subject:    job.Subject,
				Recipients: len(job.Recipients),
				CreatedAt:  job.CreatedAt,
			}); err != nil {
				log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to save queued job record")
			}
		}

		if _, err := q.Enqueue(r.Context(), job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue bulk job")
			respondError(w, http.StatusServiceUnavailable, "queue unavailable")
			return
		}

		log.Info().
			Str("job_id", job.ID).
			Int("recipients", len(job.Recipients)).
			Msg("bulk job queued")

		w.Header().Set("Location", "/api/v1/reports/"+job.ID)
		respondJSON(w, http.StatusAccepted, bulkResponse{
			JobID:      job.ID,
			Status:     reportstore.StatusQueued,
			Recipients: len(job.Recipients),
		})
	}
}

// ReportHandler handles GET /api/v1/reports/{id}.
func ReportHandler(reports ReportArchive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := reports.Load(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, reportstore.ErrNotFound):
			respondError(w, http.StatusNotFound, "report not found")
			return
		case errors.Is(err, reportstore.ErrInvalidID):
			respondError(w, http.StatusBadRequest, "invalid report ID")
			return
		case err != nil:
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("failed to load report")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, rec)
	}
}
