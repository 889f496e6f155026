package provider

import (
	"context"
	"strings"
)

// Sender performs exactly one delivery attempt through a configured backend.
// Implementations never return errors for expected failures; the outcome is
// reported in the returned Attempt.
type Sender interface {
	// Name returns the configured provider instance name (e.g., "brevo", "smtp-gmail").
	Name() string
	// Send makes a single delivery attempt for msg.
	Send(ctx context.Context, msg *Message) Attempt
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Header returns the value of the named response header, matching the key
// case-insensitively.
func (r *HTTPResponse) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[key]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Message is one outbound email addressed to a single recipient.
type Message struct {
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	Tags     []string
}
