package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	smtpserver "github.com/sungwon/mailrelay/internal/smtp"
)

type smtpTestFlags struct {
	host     string
	port     int
	tlsMode  string
	insecure bool
	user     string
	key      string
	from     string
	to       []string
	subject  string
	body     string
	provider string
	count    int
	rate     float64
}

func newSMTPTestCmd(a *app) *cobra.Command {
	var f smtpTestFlags

	cmd := &cobra.Command{
		Use:   "smtp-test",
		Short: "Submit test messages to the SMTP submission server",
		Example: `  mailctl smtp-test --key $KEY --from app@example.com --to me@example.com
  mailctl smtp-test --tls none --key $KEY --from app@example.com --to me@example.com --count 20 --rate 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.from == "" || len(f.to) == 0 {
				return fmt.Errorf("--from and at least one --to are required")
			}
			if f.count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			host := f.host
			if host == "" {
				host = a.cfg.SMTP.Host
				if host == "" || host == "0.0.0.0" {
					host = "localhost"
				}
			}
			port := f.port
			if port == 0 {
				port = a.cfg.SMTP.Port
			}
			addr := net.JoinHostPort(host, strconv.Itoa(port))

			out := cmd.OutOrStdout()
			limit := rate.Inf
			if f.rate > 0 {
				limit = rate.Limit(f.rate)
			}
			limiter := rate.NewLimiter(limit, 1)
			ok, failed := 0, 0
			for i := 1; i <= f.count; i++ {
				if err := limiter.Wait(cmd.Context()); err != nil {
					return err
				}

				subject := f.subject
				if f.count > 1 {
					subject = fmt.Sprintf("%s [%d/%d]", f.subject, i, f.count)
				}
				msg := buildTestMessage(f.from, f.to, subject, f.body, f.provider, time.Now())

				start := time.Now()
				err := submit(addr, host, f, msg)
				elapsed := time.Since(start).Round(time.Millisecond)
				if err != nil {
					failed++
					fmt.Fprintf(out, "[%d/%d] FAIL (%s): %v\n", i, f.count, elapsed, err)
					continue
				}
				ok++
				fmt.Fprintf(out, "[%d/%d] OK   (%s)\n", i, f.count, elapsed)
			}

			fmt.Fprintf(out, "\n%d accepted, %d failed\n", ok, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d submissions failed", failed, f.count)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.host, "host", "", "server host (default from smtp.host)")
	fl.IntVar(&f.port, "port", 0, "server port (default from smtp.port)")
	fl.StringVar(&f.tlsMode, "tls", "starttls", "TLS mode: starttls, implicit or none")
	fl.BoolVar(&f.insecure, "insecure", false, "skip TLS certificate verification")
	fl.StringVar(&f.user, "user", "mailctl", "AUTH PLAIN username")
	fl.StringVar(&f.key, "key", "", "API key used as the AUTH PLAIN password")
	fl.StringVar(&f.from, "from", "", "envelope and header sender")
	fl.StringArrayVar(&f.to, "to", nil, "recipient (repeatable)")
	fl.StringVar(&f.subject, "subject", "Test Email", "subject line")
	fl.StringVar(&f.body, "body", "This is a test email sent by mailctl.", "plain text body")
	fl.StringVar(&f.provider, "provider", "", "preferred provider, sent as "+smtpserver.ProviderHeader)
	fl.IntVar(&f.count, "count", 1, "number of messages to submit")
	fl.Float64Var(&f.rate, "rate", 1, "messages per second when --count > 1")
	return cmd
}

func dialSMTP(addr, host string, f smtpTestFlags) (*gosmtp.Client, error) {
	tlsConfig := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: f.insecure, //nolint:gosec // Intentional for dev self-signed certs.
	}
	switch f.tlsMode {
	case "none":
		return gosmtp.Dial(addr)
	case "implicit":
		return gosmtp.DialTLS(addr, tlsConfig)
	case "starttls":
		return gosmtp.DialStartTLS(addr, tlsConfig)
	default:
		return nil, fmt.Errorf("unknown TLS mode %q (use starttls, implicit or none)", f.tlsMode)
	}
}

func submit(addr, host string, f smtpTestFlags, msg string) error {
	c, err := dialSMTP(addr, host, f)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	if f.key != "" {
		if err := c.Auth(sasl.NewPlainClient("", f.user, f.key)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.SendMail(f.from, f.to, strings.NewReader(msg)); err != nil {
		return err
	}
	return c.Quit()
}

func buildTestMessage(from string, to []string, subject, body, provider string, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", now.Format(time.RFC1123Z))
	if provider != "" {
		fmt.Fprintf(&sb, "%s: %s\r\n", smtpserver.ProviderHeader, provider)
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return sb.String()
}
