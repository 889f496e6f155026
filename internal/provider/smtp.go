package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTPSender delivers over authenticated SMTP with STARTTLS.
type SMTPSender struct {
	bundle    Bundle
	addr      string
	host      string
	tlsConfig *tls.Config
	timeout   time.Duration
	dialer    *net.Dialer
}

// NewSMTPSender creates an SMTPSender for a resolved SMTP bundle. A nil
// tlsConfig verifies the server certificate against the configured host.
func NewSMTPSender(b Bundle, tlsConfig *tls.Config, timeout time.Duration) (*SMTPSender, error) {
	host := b.Get("host")
	port := b.Descriptor.DefaultPort
	if raw := b.Get("port"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("%s: invalid smtp port %q", b.Name, raw)
		}
		port = p
	}
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPSender{
		bundle:    b,
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		host:      host,
		tlsConfig: tlsConfig,
		timeout:   timeout,
		dialer:    &net.Dialer{Timeout: timeout},
	}, nil
}

func (s *SMTPSender) Name() string { return s.bundle.Name }

// Send opens a fresh connection, upgrades it with STARTTLS, authenticates
// with PLAIN and submits one message.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) Attempt {
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return transportError(fmt.Errorf("%s: dial %s: %w", s.Name(), s.addr, err), start)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := gosmtp.NewClientStartTLS(conn, s.tlsConfig)
	if err != nil {
		return s.failed("starttls", err, start)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", s.bundle.Get("user"), s.bundle.Get("password"))); err != nil {
		return s.failed("auth", err, start)
	}

	from := msg.From
	if from == "" {
		from = s.bundle.Get("user")
	}
	body := buildMIME(from, msg, start)
	if err := c.SendMail(from, []string{msg.To}, bytes.NewReader(body)); err != nil {
		return s.failed("send", err, start)
	}
	_ = c.Quit()

	return delivered(s.Name(), msg.To, "", 250, start)
}

// failed maps an SMTP error onto an Attempt. Permanent 5xx replies, such as
// authentication failures, are rejections; everything else is a transport
// error.
func (s *SMTPSender) failed(stage string, err error, start time.Time) Attempt {
	a := transportError(fmt.Errorf("%s: %s: %w", s.Name(), stage, err), start)
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		a.StatusCode = se.Code
		if se.Code >= 500 {
			a.Outcome = Rejected
		}
	}
	return a
}

// bodyNewlines folds CRLF and bare CR into LF before encoding.
var bodyNewlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// buildMIME renders a single-part HTML message. The body is quoted-printable
// so every line ends in CRLF and stays under the SMTP line length limit.
func buildMIME(from string, msg *Message, now time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + formatAddress(msg.FromName, from) + "\r\n")
	b.WriteString("To: " + formatAddress(msg.ToName, msg.To) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	if len(msg.Tags) > 0 {
		b.WriteString("X-Tags: " + strings.Join(msg.Tags, ", ") + "\r\n")
	}
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	qp := quotedprintable.NewWriter(&b)
	_, _ = qp.Write([]byte(bodyNewlines.Replace(msg.HTMLBody)))
	_ = qp.Close()
	b.WriteString("\r\n")
	return b.Bytes()
}
