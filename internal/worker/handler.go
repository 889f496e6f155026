package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

// bulkSender runs a bulk send against the current provider set.
type bulkSender interface {
	SendBulk(ctx context.Context, recipients []mailer.Recipient, subject, htmlTemplate string, opts mailer.BulkOptions) (*mailer.BulkReport, error)
}

// refresher reloads providers from their source of truth.
type refresher interface {
	Refresh(ctx context.Context) error
}

// recordStore persists job records and their final reports.
type recordStore interface {
	Load(ctx context.Context, jobID string) (reportstore.Record, error)
	Save(ctx context.Context, rec reportstore.Record) error
	Complete(ctx context.Context, rec reportstore.Record, report *mailer.BulkReport, runErr error) error
}

// Handler implements queue.JobHandler. It runs each bulk job through the
// mailer and archives the resulting report.
type Handler struct {
	sender  bulkSender
	records recordStore
	log     zerolog.Logger
}

// NewHandler creates a Handler. records may be nil, in which case reports
// are only logged.
func NewHandler(sender bulkSender, records recordStore, log zerolog.Logger) *Handler {
	return &Handler{
		sender:  sender,
		records: records,
		log:     log,
	}
}

// HandleJob implements queue.JobHandler. Only a missing provider set is
// returned as an error, so the queue retries the job later; per-recipient
// failures are part of the report and never cause a retry.
func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	log := h.log.With().Str("job_id", job.ID).Int("recipients", len(job.Recipients)).Logger()

	if err := job.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid job, dropping")
		h.complete(ctx, h.record(ctx, job), nil, fmt.Errorf("invalid job: %w", err))
		return nil
	}

	// A missing provider set may be fixed by a registry change since the
	// last load.
	if r, ok := h.sender.(refresher); ok && job.RetryCount > 0 {
		if err := r.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("provider refresh failed, using current set")
		}
	}

	rec := h.record(ctx, job)
	rec.Status = reportstore.StatusRunning
	rec.Error = ""
	h.save(ctx, rec)

	opts := job.BulkOptions()
	opts.Progress = progressLogger(log, len(job.Recipients))

	report, err := h.sender.SendBulk(ctx, job.Recipients, job.Subject, job.HTML, opts)
	if errors.Is(err, mailer.ErrNoProviders) {
		rec.Status = reportstore.StatusQueued
		rec.Error = err.Error()
		h.save(ctx, rec)
		return fmt.Errorf("send bulk %s: %w", job.ID, err)
	}

	if report != nil {
		log.Info().
			Int("sent", len(report.Sent)).
			Int("failed", len(report.Failed)).
			Float64("success_rate", report.SuccessRate).
			Strs("providers", report.ProvidersUsed).
			Msg("bulk job finished")
	}
	h.complete(ctx, rec, report, err)
	return nil
}

// record loads the archived record of job or builds a fresh one.
func (h *Handler) record(ctx context.Context, job *queue.Job) reportstore.Record {
	if h.records != nil {
		rec, err := h.records.Load(ctx, job.ID)
		if err == nil {
			return rec
		}
		if !errors.Is(err, reportstore.ErrNotFound) {
			h.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to load job record")
		}
	}
	return reportstore.Record{
		JobID:      job.ID,
		Status:     reportstore.StatusQueued,
		Subject:    job.Subject,
		Recipients: len(job.Recipients),
		CreatedAt:  job.CreatedAt,
	}
}

func (h *Handler) save(ctx context.Context, rec reportstore.Record) {
	if h.records == nil {
		return
	}
	if err := h.records.Save(ctx, rec); err != nil {
		h.log.Error().Err(err).Str("job_id", rec.JobID).Msg("failed to save job record")
	}
}

func (h *Handler) complete(ctx context.Context, rec reportstore.Record, report *mailer.BulkReport, runErr error) {
	if h.records == nil {
		return
	}
	// The job context may already be done; the report must still land.
	if err := h.records.Complete(context.WithoutCancel(ctx), rec, report, runErr); err != nil {
		h.log.Error().Err(err).Str("job_id", rec.JobID).Msg("failed to archive bulk report")
	}
}

// progressLogger logs roughly every tenth of the job.
func progressLogger(log zerolog.Logger, total int) mailer.ProgressFunc {
	step := max(total/10, 1)
	return func(done, total int) {
		if done%step == 0 || done == total {
			log.Debug().Int("done", done).Int("total", total).Msg("bulk progress")
		}
	}
}
