package mailer

import (
	"time"

	"github.com/sungwon/mailrelay/internal/provider"
)

const (
	// ProviderAll marks a result where every provider was exhausted.
	ProviderAll = "all"
	// ProviderUnknown marks a result produced by an unexpected failure
	// outside the provider loop.
	ProviderUnknown = "unknown"
)

// SendResult is the outcome of delivering to one recipient.
type SendResult struct {
	Success      bool    `json:"success"`
	Provider     string  `json:"provider"`
	Recipient    string  `json:"recipient"`
	MessageID    string  `json:"message_id"`
	Error        string  `json:"error"`
	ResponseTime float64 `json:"response_time"`
	Timestamp    string  `json:"timestamp"`
}

// Recipient is one bulk-send target.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// BulkReport aggregates the results of one bulk send.
type BulkReport struct {
	Sent          []SendResult `json:"sent"`
	Failed        []SendResult `json:"failed"`
	Total         int          `json:"total"`
	SuccessRate   float64      `json:"success_rate"`
	ProvidersUsed []string     `json:"providers_used"`
	CompletedAt   string       `json:"completed_at"`
}

// ProgressFunc is called after each completed recipient with the number of
// recipients finished so far and the total.
type ProgressFunc func(done, total int)

// BulkOptions tunes one SendBulk call. Zero values fall back to the
// Mailer's configuration.
type BulkOptions struct {
	Provider            string
	BatchSize           int
	Concurrency         int
	SkipPersonalization bool
	Progress            ProgressFunc
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func successResult(name, to string, a provider.Attempt, at time.Time) SendResult {
	return SendResult{
		Success:      true,
		Provider:     name,
		Recipient:    to,
		MessageID:    a.MessageID,
		ResponseTime: a.Elapsed.Seconds(),
		Timestamp:    timestamp(at),
	}
}

func failureResult(name, to, errText string, at time.Time) SendResult {
	return SendResult{
		Provider:  name,
		Recipient: to,
		Error:     errText,
		Timestamp: timestamp(at),
	}
}
