package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/provider"
)

// ErrNoProviders is returned when a mailer has no providers loaded at all.
var ErrNoProviders = errors.New("no email providers configured")

// Backend is one loaded provider instance.
type Backend struct {
	Name     string
	Priority int
	Enabled  bool
	Sender   provider.Sender
}

// Config holds the mailer tuning knobs.
type Config struct {
	// RateLimit is the global sends-per-second gate (floor 0.1).
	RateLimit float64
	// ProviderRateLimits adds an independent attempts-per-second budget for
	// the named providers.
	ProviderRateLimits map[string]float64
	// MaxRetries is the number of retries per provider after the first attempt.
	MaxRetries int
	// MaxRateLimitWaits bounds how many HTTP 429 waits one provider gets per
	// send before it is abandoned.
	MaxRateLimitWaits int
	// DefaultRetryAfter is used when a 429 carries no Retry-After header.
	DefaultRetryAfter time.Duration
	// RetryAfterMargin is added to every 429 wait.
	RetryAfterMargin time.Duration
	BatchSize        int
	Concurrency      int
	// ProviderOrder pins the trial order; unknown names are ignored.
	ProviderOrder []string
	SenderEmail   string
	SenderName    string
	Tags          []string
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RateLimit:         2.0,
		MaxRetries:        3,
		MaxRateLimitWaits: 2,
		DefaultRetryAfter: 60 * time.Second,
		RetryAfterMargin:  5 * time.Second,
		BatchSize:         50,
		Concurrency:       5,
		SenderEmail:       "noreply@example.com",
		SenderName:        "Mailer",
		Tags:              []string{"telegram_bot"},
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.RateLimit < minRate {
		c.RateLimit = minRate
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRateLimitWaits < 0 {
		c.MaxRateLimitWaits = 0
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if c.RetryAfterMargin < 0 {
		c.RetryAfterMargin = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
}

// StatsSink receives every attempt outcome. Calls are made asynchronously
// and their errors are only logged.
type StatsSink interface {
	RecordProviderOutcome(ctx context.Context, name string, success bool, at time.Time) error
}

// HealthStore persists health counters across process restarts.
type HealthStore interface {
	Load(ctx context.Context, names []string) ([]Health, error)
	Save(ctx context.Context, h Health) error
}

// Option customizes a Mailer.
type Option func(*Mailer)

// WithStatsSink registers a sink notified after every attempt.
func WithStatsSink(s StatsSink) Option {
	return func(m *Mailer) { m.stats = s }
}

// WithHealthStore enables persistence of health counters.
func WithHealthStore(hs HealthStore) Option {
	return func(m *Mailer) { m.healthStore = hs }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Mailer) { m.sleep = fn }
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(m *Mailer) { m.now = fn }
}

// Mailer sends mail through a fixed snapshot of providers. Provider changes
// require building a new Mailer; see Service.
type Mailer struct {
	backends     map[string]Backend
	names        []string
	cfg          Config
	health       *Tracker
	limiter      *limiter
	stats        StatsSink
	healthStore  HealthStore
	healthWriter *healthWriter
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	log          zerolog.Logger
	sinkWG       sync.WaitGroup
}

// New builds a Mailer over backends. Health counters start empty unless a
// HealthStore is configured, in which case stored counters are restored.
func New(ctx context.Context, backends []Backend, cfg Config, log zerolog.Logger, opts ...Option) *Mailer {
	cfg.normalize()

	m := &Mailer{
		backends: make(map[string]Backend, len(backends)),
		cfg:      cfg,
		limiter:  newLimiter(cfg.RateLimit, cfg.ProviderRateLimits),
		sleep:    sleepContext,
		now:      time.Now,
		log:      log.With().Str("component", "mailer").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, b := range backends {
		if b.Sender == nil || b.Name == "" {
			continue
		}
		if _, dup := m.backends[b.Name]; dup {
			m.log.Warn().Str("provider", b.Name).Msg("duplicate provider name, keeping first")
			continue
		}
		m.backends[b.Name] = b
		m.names = append(m.names, b.Name)
	}

	if m.healthStore != nil {
		m.healthWriter = newHealthWriter(m.healthStore, m.log)
	}

	m.health = NewTracker(m.names...)
	for _, name := range m.names {
		m.health.SetEnabled(name, m.backends[name].Enabled)
	}
	m.restoreHealth(ctx)

	for _, name := range m.names {
		m.publishHealth(name)
	}

	m.log.Info().
		Int("providers", len(m.names)).
		Strs("order", m.priorityOrder()).
		Float64("rate_limit", cfg.RateLimit).
		Msg("mailer initialized")
	return m
}

func (m *Mailer) restoreHealth(ctx context.Context) {
	if m.healthStore == nil || len(m.names) == 0 {
		return
	}
	stored, err := m.healthStore.Load(ctx, m.names)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to restore provider health, starting empty")
		return
	}
	for _, h := range stored {
		if _, ok := m.backends[h.Name]; ok {
			m.health.Restore(h)
		}
	}
	m.log.Info().Int("restored", len(stored)).Msg("provider health restored")
}

func (m *Mailer) publishHealth(name string) {
	v := 0.0
	if m.health.ShouldUse(name) {
		v = 1
	}
	metrics.ProviderHealthy.WithLabelValues(name).Set(v)
}

// Providers returns the loaded provider names in load order.
func (m *Mailer) Providers() []string {
	return append([]string(nil), m.names...)
}

// Health returns the tracker holding live provider counters.
func (m *Mailer) Health() *Tracker {
	return m.health
}

// Config returns the normalized configuration.
func (m *Mailer) Config() Config {
	return m.cfg
}

// Wait blocks until every pending stats sink notification and health write
// has finished.
func (m *Mailer) Wait() {
	m.sinkWG.Wait()
	m.flushHealth()
}

func (m *Mailer) flushHealth() {
	if m.healthWriter != nil {
		m.healthWriter.flush()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
