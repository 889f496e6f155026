// Package smtp is an authenticated SMTP submission front door. Messages
// accepted over SMTP are relayed recipient by recipient through the
// rotating mailer.
package smtp

import (
	"context"
	"sync/atomic"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/auth"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/metrics"
)

// Sender delivers one message to one recipient. *mailer.Service satisfies it.
type Sender interface {
	SendSingle(ctx context.Context, to, subject, html, preferred string) (mailer.SendResult, error)
}

// Limits bounds what a single connection may do.
type Limits struct {
	MaxConnections int
	MaxRecipients  int
	// AllowedSenderDomains restricts MAIL FROM. Empty allows any domain.
	AllowedSenderDomains []string
}

// Backend implements the go-smtp Backend interface.
// It manages session creation and enforces connection limits.
type Backend struct {
	sender  Sender
	keys    auth.KeyVerifier
	log     zerolog.Logger
	limits  Limits
	senders domainSet
	active  atomic.Int64
}

// NewBackend creates a backend that authenticates clients against keys and
// relays through sender.
func NewBackend(sender Sender, keys auth.KeyVerifier, log zerolog.Logger, limits Limits) *Backend {
	return &Backend{
		sender:  sender,
		keys:    keys,
		log:     log,
		limits:  limits,
		senders: newDomainSet(limits.AllowedSenderDomains),
	}
}

// NewSession is called after a client sends EHLO/HELO.
func (b *Backend) NewSession(conn *gosmtp.Conn) (gosmtp.Session, error) {
	return b.newSession(conn.Hostname())
}

func (b *Backend) newSession(remote string) (*Session, error) {
	current := b.active.Add(1)
	if b.limits.MaxConnections > 0 && int(current) > b.limits.MaxConnections {
		b.active.Add(-1)
		metrics.SMTPConnectionsTotal.WithLabelValues("rejected").Inc()
		b.log.Warn().
			Int64("active", current-1).
			Int("max", b.limits.MaxConnections).
			Msg("connection limit reached")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "Too many connections",
		}
	}
	metrics.SMTPConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.SMTPActiveSessions.Inc()

	correlationID := logger.NewCorrelationID()
	ctx := logger.WithCorrelationID(context.Background(), correlationID)

	sessionLog := b.log.With().
		Str("correlation_id", correlationID).
		Str("remote_addr", remote).
		Logger()

	sessionLog.Info().Msg("new SMTP session")

	return &Session{
		ctx:     ctx,
		log:     sessionLog,
		backend: b,
	}, nil
}

// ActiveSessions returns the current number of active SMTP sessions.
func (b *Backend) ActiveSessions() int64 {
	return b.active.Load()
}

func (b *Backend) release() {
	b.active.Add(-1)
	metrics.SMTPActiveSessions.Dec()
}
