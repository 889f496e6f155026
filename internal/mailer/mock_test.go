package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/provider"
)

// mockSender replies through fn, or delivers when fn is nil.
type mockSender struct {
	name  string
	delay time.Duration
	fn    func(call int, msg *provider.Message) provider.Attempt
	calls atomic.Int64

	mu   sync.Mutex
	msgs []*provider.Message
}

func (s *mockSender) Name() string { return s.name }

func (s *mockSender) Send(ctx context.Context, msg *provider.Message) provider.Attempt {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return provider.Attempt{Outcome: provider.TransportError, Detail: ctx.Err().Error()}
		}
	}
	if s.fn == nil {
		return delivered(s.name)
	}
	return s.fn(n, msg)
}

func (s *mockSender) callCount() int { return int(s.calls.Load()) }

func delivered(name string) provider.Attempt {
	return provider.Attempt{
		Outcome:    provider.Delivered,
		MessageID:  name + "-id",
		Elapsed:    100 * time.Millisecond,
		StatusCode: 202,
	}
}

func serverError(int, *provider.Message) provider.Attempt {
	return provider.Attempt{Outcome: provider.TransportError, Detail: "HTTP 500: internal error", StatusCode: 500}
}

func rejected(int, *provider.Message) provider.Attempt {
	return provider.Attempt{Outcome: provider.Rejected, Detail: "HTTP 400: invalid recipient", StatusCode: 400}
}

func rateLimited(retryAfter time.Duration) func(int, *provider.Message) provider.Attempt {
	return func(int, *provider.Message) provider.Attempt {
		return provider.Attempt{
			Outcome:    provider.TransportError,
			Detail:     "HTTP 429: too many requests",
			StatusCode: 429,
			RetryAfter: retryAfter,
		}
	}
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

// mockStatsSink collects outcomes.
type mockStatsSink struct {
	mu       sync.Mutex
	outcomes []bool
	err      error
}

func (s *mockStatsSink) RecordProviderOutcome(_ context.Context, _ string, success bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, success)
	return s.err
}

func backend(s *mockSender, priority int) Backend {
	return Backend{Name: s.name, Priority: priority, Enabled: true, Sender: s}
}

// testConfig is a fast configuration: no rate limiting to speak of.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	return cfg
}

func newTestMailer(backends []Backend, cfg Config, opts ...Option) (*Mailer, *sleepRecorder) {
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return New(context.Background(), backends, cfg, zerolog.Nop(), opts...), rec
}
