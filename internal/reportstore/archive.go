package reportstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/mailer"
)

// Job status values.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the archived state of one bulk-send job.
type Record struct {
	JobID       string             `json:"job_id"`
	Status      string             `json:"status"`
	Subject     string             `json:"subject"`
	Recipients  int                `json:"recipients"`
	Report      *mailer.BulkReport `json:"report,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Archive stores Records as JSON in a BlobStore.
type Archive struct {
	store BlobStore
	now   func() time.Time
}

// NewArchive wraps store.
func NewArchive(store BlobStore) *Archive {
	return &Archive{store: store, now: time.Now}
}

// Save writes rec, stamping UpdatedAt.
func (a *Archive) Save(ctx context.Context, rec Record) error {
	rec.UpdatedAt = a.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("reportstore: marshal record: %w", err)
	}
	return a.store.Put(ctx, rec.JobID, data)
}

// Load reads the record of jobID.
func (a *Archive) Load(ctx context.Context, jobID string) (Record, error) {
	data, err := a.store.Get(ctx, jobID)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("reportstore: decode record %s: %w", jobID, err)
	}
	return rec, nil
}

// Complete archives the final report of jobID. A non-nil runErr marks the
// job failed while still keeping whatever partial report exists.
func (a *Archive) Complete(ctx context.Context, rec Record, report *mailer.BulkReport, runErr error) error {
	done := a.now().UTC()
	rec.Report = report
	rec.CompletedAt = &done
	rec.Status = StatusCompleted
	rec.Error = ""
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
	}
	return a.Save(ctx, rec)
}

// Delete removes the record of jobID.
func (a *Archive) Delete(ctx context.Context, jobID string) error {
	return a.store.Delete(ctx, jobID)
}

// Prune deletes records not written for maxAge.
func (a *Archive) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	return a.store.Prune(ctx, a.now().Add(-maxAge))
}

// RunRetention prunes on start and then every interval until ctx ends.
// A non-positive maxAge keeps records forever.
func (a *Archive) RunRetention(ctx context.Context, maxAge, interval time.Duration, log zerolog.Logger) {
	if maxAge <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := a.Prune(ctx, maxAge)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Int("removed", n).Msg("report retention sweep failed")
		case n > 0:
			log.Info().Int("removed", n).Dur("max_age", maxAge).Msg("expired job reports removed")
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
