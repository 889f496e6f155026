package mailer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Loader produces the current provider snapshot, typically from the
// provider registry.
type Loader interface {
	LoadBackends(ctx context.Context) ([]Backend, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]Backend, error)

func (f LoaderFunc) LoadBackends(ctx context.Context) ([]Backend, error) { return f(ctx) }

// Service owns the current Mailer and replaces it on Refresh. Sends already
// in flight keep the instance they started with.
type Service struct {
	loader  Loader
	cfg     Config
	log     zerolog.Logger
	opts    []Option
	current atomic.Pointer[Mailer]
	mu      sync.Mutex
}

// NewService loads providers once and builds the first Mailer.
func NewService(ctx context.Context, loader Loader, cfg Config, log zerolog.Logger, opts ...Option) (*Service, error) {
	s := &Service{loader: loader, cfg: cfg, log: log, opts: opts}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Mailer returns the current instance.
func (s *Service) Mailer() *Mailer {
	return s.current.Load()
}

// Refresh reloads providers and swaps in a freshly built Mailer. On error the
// previous instance stays in place.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backends, err := s.loader.LoadBackends(ctx)
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	// Stored health must include the old instance's last writes before the
	// new one restores from it.
	if old := s.current.Load(); old != nil {
		old.flushHealth()
	}
	m := New(ctx, backends, s.cfg, s.log, s.opts...)
	if old := s.current.Swap(m); old != nil {
		s.log.Info().
			Strs("old", old.Providers()).
			Strs("new", m.Providers()).
			Msg("mailer providers refreshed")
	}
	return nil
}

// SendSingle delegates to the current Mailer.
func (s *Service) SendSingle(ctx context.Context, to, subject, html, preferred string) (SendResult, error) {
	return s.Mailer().SendSingle(ctx, to, subject, html, preferred)
}

// SendBulk delegates to the current Mailer.
func (s *Service) SendBulk(ctx context.Context, recipients []Recipient, subject, htmlTemplate string, opts BulkOptions) (*BulkReport, error) {
	return s.Mailer().SendBulk(ctx, recipients, subject, htmlTemplate, opts)
}

// Status delegates to the current Mailer.
func (s *Service) Status() Status {
	return s.Mailer().Status()
}
