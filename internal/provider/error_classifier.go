package provider

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxDetailLen bounds how much of a provider response body ends up in error text.
const maxDetailLen = 300

// ProviderError wraps an ESP API error with classification metadata.
type ProviderError struct {
	// Provider is the name of the ESP that returned the error.
	Provider string
	// StatusCode is the HTTP status code from the ESP API.
	StatusCode int
	// Message is the error description from the ESP API.
	Message string
	// Permanent indicates the error will not succeed on retry against the
	// same provider.
	Permanent bool
	// RetryAfter is the parsed Retry-After header of a 429 response.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	return e.Provider + ": HTTP " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// Outcome maps the classification onto the attempt outcome.
func (e *ProviderError) Outcome() Outcome {
	if e.Permanent {
		return Rejected
	}
	return TransportError
}

// Attempt converts the error into a failed Attempt.
func (e *ProviderError) Attempt(start time.Time) Attempt {
	return Attempt{
		Outcome:    e.Outcome(),
		Detail:     e.Error(),
		Elapsed:    time.Since(start),
		StatusCode: e.StatusCode,
		RetryAfter: e.RetryAfter,
	}
}

// IsPermanent returns true if the error is a permanent failure that should
// not be retried against the same provider.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// IsTransient returns true if the error is a temporary failure that may
// succeed on retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Permanent
	}
	// Unknown errors are treated as transient.
	return true
}

// ClassifyHTTPError creates a ProviderError from an HTTP response, classifying
// it as permanent or transient. It returns nil for 2xx responses.
func ClassifyHTTPError(providerName string, resp *HTTPResponse) *ProviderError {
	status := resp.StatusCode
	body := truncate(strings.TrimSpace(string(resp.Body)), maxDetailLen)

	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: status,
		Message:    body,
	}

	switch {
	case status >= 200 && status < 300:
		// Not an error.
		return nil

	case status == http.StatusTooManyRequests:
		// Rate limited - always transient, the caller decides how long to wait.
		pe.RetryAfter = ParseRetryAfter(resp.Header("Retry-After"), time.Now())

	case status >= 400 && status < 500:
		pe.Permanent = true

	case status >= 500:
		pe.Permanent = containsPermanentServerIndicator(body)

	default:
		// 1xx/3xx from a JSON API is unexpected; let the retry loop decide.
		pe.Permanent = false
	}

	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}

// ParseRetryAfter interprets a Retry-After header value given either as
// delay-seconds or as an HTTP date. It returns 0 when the value is absent or
// unparseable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// containsPermanentServerIndicator checks if a 5xx response body indicates
// a permanent server-side failure (e.g., invalid auth configuration).
func containsPermanentServerIndicator(body string) bool {
	lower := strings.ToLower(body)
	permanentPatterns := []string{
		"invalid api key",
		"authentication failed",
		"account suspended",
		"account disabled",
		"unauthorized",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
