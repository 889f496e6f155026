package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/mimeparse"
)

// ProviderHeader lets a client name the provider to try first.
const ProviderHeader = "X-Mailrelay-Provider"

const defaultSubject = "(no subject)"

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
)

// Session handles a single SMTP connection and implements the go-smtp Session
// and AuthSession interfaces.
type Session struct {
	ctx           context.Context
	log           zerolog.Logger
	backend       *Backend
	keyName       string
	authenticated bool
	sender        string
	recipients    []string
}

// AuthMechanisms advertises SASL PLAIN only.
func (s *Session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth starts a SASL exchange. The PLAIN password is an API key; the username
// is informational.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, &gosmtp.SMTPError{
			Code:         504,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 4},
			Message:      "Unsupported authentication mechanism",
		}
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		return s.authenticate(username, password)
	}), nil
}

func (s *Session) authenticate(username, password string) error {
	if s.backend.keys == nil {
		metrics.SMTPAuthAttemptsTotal.WithLabelValues("failure").Inc()
		s.log.Warn().Str("username", username).Msg("auth failed: no API keys configured")
		return errAuthFailed
	}

	name, err := s.backend.keys.Verify(password)
	if err != nil {
		metrics.SMTPAuthAttemptsTotal.WithLabelValues("failure").Inc()
		s.log.Warn().Str("username", username).Msg("auth failed: invalid key")
		return errAuthFailed
	}

	metrics.SMTPAuthAttemptsTotal.WithLabelValues("success").Inc()
	s.keyName = name
	s.authenticated = true
	s.log = s.log.With().Str("key", name).Logger()
	s.log.Info().Str("username", username).Msg("auth successful")
	return nil
}

// Mail handles MAIL FROM. The sender domain must be in the allowed list when
// one is configured. Delivery itself always uses the mailer's sender identity.
func (s *Session) Mail(from string, opts *gosmtp.MailOptions) error {
	if !s.authenticated {
		return errAuthRequired
	}

	addr, err := mailbox(from)
	if err != nil {
		s.log.Warn().Str("from", from).Msg("invalid sender address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
			Message:      "Invalid sender address",
		}
	}

	if domain := domainOf(addr); !s.backend.senders.allows(domain) {
		s.log.Warn().
			Str("from", addr).
			Str("domain", domain).
			Strs("allowed", s.backend.limits.AllowedSenderDomains).
			Msg("sender domain not allowed")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "Sender domain not allowed",
		}
	}

	s.sender = addr
	s.log.Debug().Str("from", s.sender).Msg("MAIL FROM accepted")
	return nil
}

// Rcpt handles RCPT TO.
func (s *Session) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	if !s.authenticated {
		return errAuthRequired
	}

	if limit := s.backend.limits.MaxRecipients; limit > 0 && len(s.recipients) >= limit {
		return &gosmtp.SMTPError{
			Code:         452,
			EnhancedCode: gosmtp.EnhancedCode{4, 5, 3},
			Message:      "Too many recipients",
		}
	}

	addr, err := mailbox(to)
	if err != nil {
		s.log.Warn().Str("to", to).Msg("invalid recipient address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr)
	s.log.Debug().Str("to", addr).Msg("RCPT TO accepted")
	return nil
}

// Data reads the message and relays it to every recipient. The reply is 250
// when at least one recipient was delivered, and a transient 451 when none
// were, so the client retries later. Body content is never logged.
func (s *Session) Data(r io.Reader) error {
	if !s.authenticated {
		return errAuthRequired
	}
	if len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			return smtpErr
		}
		s.log.Error().Err(err).Msg("failed to read message data")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	parsed, err := mimeparse.Parse(buf.Bytes())
	if err != nil {
		metrics.SMTPMessagesTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Err(err).Msg("malformed message")
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	body := parsed.Body()
	if body == "" {
		metrics.SMTPMessagesTotal.WithLabelValues("rejected").Inc()
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "Message has no body",
		}
	}
	for _, p := range parsed.Dropped {
		s.log.Warn().
			Str("filename", p.Filename).
			Str("content_type", p.ContentType).
			Int("size", p.Size).
			Msg("part not relayed")
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	preferred := strings.TrimSpace(parsed.Headers.Get(ProviderHeader))

	sent, failed := 0, 0
	for _, to := range s.recipients {
		res, err := s.backend.sender.SendSingle(s.ctx, to, subject, body, preferred)
		if errors.Is(err, mailer.ErrNoProviders) {
			metrics.SMTPMessagesTotal.WithLabelValues("deferred").Inc()
			s.log.Error().Msg("no delivery providers available")
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "No delivery providers available",
			}
		}
		if err != nil || !res.Success {
			failed++
			s.log.Warn().
				Str("to", to).
				Str("error", res.Error).
				Msg("recipient delivery failed")
			continue
		}
		sent++
		s.log.Info().
			Str("to", to).
			Str("provider", res.Provider).
			Str("message_id", res.MessageID).
			Msg("recipient delivered")
	}

	switch {
	case sent == 0:
		metrics.SMTPMessagesTotal.WithLabelValues("deferred").Inc()
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 4, 0},
			Message:      "Delivery failed, try again later",
		}
	case failed > 0:
		metrics.SMTPMessagesTotal.WithLabelValues("partial").Inc()
	default:
		metrics.SMTPMessagesTotal.WithLabelValues("relayed").Inc()
	}

	s.log.Info().
		Str("from", s.sender).
		Int("sent", sent).
		Int("failed", failed).
		Msg("message relayed")
	return nil
}

// Reset clears the envelope but keeps the authentication state.
func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout is called when the client disconnects.
func (s *Session) Logout() error {
	s.backend.release()
	s.log.Info().Msg("session closed")
	return nil
}
