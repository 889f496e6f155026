package provider

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"time"
)

// Outcome is the tri-state result of a single delivery attempt.
type Outcome int

const (
	// Delivered means the backend accepted the message.
	Delivered Outcome = iota
	// Rejected means the remote party refused the message (4xx other than
	// 429, SMTP 5xx replies such as authentication failure).
	Rejected
	// TransportError covers timeouts, connection failures, 5xx responses,
	// rate limiting and anything unexpected.
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Attempt describes one delivery attempt against one backend.
type Attempt struct {
	Outcome   Outcome
	Detail    string
	MessageID string
	Elapsed   time.Duration

	// StatusCode is the HTTP status (API backends) or SMTP reply code, 0 when
	// the attempt never got a response.
	StatusCode int
	// RetryAfter is the server-requested wait for rate-limited attempts, 0 if
	// the server did not specify one.
	RetryAfter time.Duration
}

// Delivered reports whether the attempt succeeded.
func (a Attempt) Delivered() bool { return a.Outcome == Delivered }

// RateLimited reports whether the backend answered HTTP 429.
func (a Attempt) RateLimited() bool { return a.StatusCode == http.StatusTooManyRequests }

// LocalMessageID synthesizes a traceable message id for backends that do not
// return one: "<provider>_<unix seconds>_<recipient hash mod 10000>".
func LocalMessageID(provider, recipient string, now time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(recipient))
	return fmt.Sprintf("%s_%d_%04d", provider, now.Unix(), h.Sum32()%10000)
}

func delivered(provider, recipient, id string, status int, start time.Time) Attempt {
	if id == "" {
		id = LocalMessageID(provider, recipient, time.Now())
	}
	return Attempt{
		Outcome:    Delivered,
		Detail:     fmt.Sprintf("accepted (%d)", status),
		MessageID:  id,
		Elapsed:    time.Since(start),
		StatusCode: status,
	}
}

func transportError(err error, start time.Time) Attempt {
	return Attempt{
		Outcome: TransportError,
		Detail:  err.Error(),
		Elapsed: time.Since(start),
	}
}
