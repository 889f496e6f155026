package queue

import (
	"math/rand/v2"
	"time"
)

// DefaultRetrySchedule spaces out retries of jobs that found no providers,
// giving an operator time to add or enable one.
var DefaultRetrySchedule = []time.Duration{
	30 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// RetryStrategy is a stepped backoff schedule with jitter.
type RetryStrategy struct {
	MaxRetries int
	Schedule   []time.Duration
	// jitter returns a value in [0, 1).
	jitter func() float64
}

// NewRetryStrategy allows maxRetries retries on schedule, or on
// DefaultRetrySchedule when schedule is empty.
func NewRetryStrategy(maxRetries int, schedule ...time.Duration) *RetryStrategy {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &RetryStrategy{
		MaxRetries: maxRetries,
		Schedule:   schedule,
		jitter:     rand.Float64,
	}
}

// ShouldRetry reports whether a job retried retryCount times may retry again.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// NextBackoff returns step retryCount of the schedule scaled into
// [base/2, base). Counts past the end reuse the last step.
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	if len(r.Schedule) == 0 {
		return 0
	}
	idx := min(max(retryCount, 0), len(r.Schedule)-1)
	base := r.Schedule[idx]
	return time.Duration(float64(base) * (0.5 + r.jitter()*0.5))
}
