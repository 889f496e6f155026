package queue

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sungwon/mailrelay/internal/mailer"
)

// MaxRecipients bounds the size of one job payload.
const MaxRecipients = 50000

// Job is one bulk send waiting in the queue.
type Job struct {
	ID                  string             `json:"id"`
	Subject             string             `json:"subject"`
	HTML                string             `json:"html"`
	Recipients          []mailer.Recipient `json:"recipients"`
	Provider            string             `json:"provider,omitempty"`
	BatchSize           int                `json:"batch_size,omitempty"`
	Concurrency         int                `json:"concurrency,omitempty"`
	SkipPersonalization bool               `json:"skip_personalization,omitempty"`
	RetryCount          int                `json:"retry_count"`
	CreatedAt           time.Time          `json:"created_at"`
	// NotBefore holds a retry back when the backend cannot delay it that long.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// NewJob creates a Job with a generated UUID and current timestamp.
func NewJob(subject, html string, recipients []mailer.Recipient) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Subject:    subject,
		HTML:       html,
		Recipients: recipients,
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate rejects jobs the worker could never complete.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Subject) == "" {
		return errors.New("subject is required")
	}
	if strings.TrimSpace(j.HTML) == "" {
		return errors.New("html body is required")
	}
	if len(j.Recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	if len(j.Recipients) > MaxRecipients {
		return fmt.Errorf("too many recipients: %d (max %d)", len(j.Recipients), MaxRecipients)
	}
	for i, r := range j.Recipients {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return fmt.Errorf("recipient %d: invalid email %q", i, r.Email)
		}
	}
	return nil
}

// BulkOptions maps the job's tuning fields onto mailer options.
func (j *Job) BulkOptions() mailer.BulkOptions {
	return mailer.BulkOptions{
		Provider:            j.Provider,
		BatchSize:           j.BatchSize,
		Concurrency:         j.Concurrency,
		SkipPersonalization: j.SkipPersonalization,
	}
}
