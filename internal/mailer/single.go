package mailer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/provider"
)

// errNoEligible is the failure text when every provider was skipped as
// unhealthy and nothing was attempted.
const errNoEligible = "no healthy providers available"

// SendSingle delivers one message, walking providers in trial order with
// bounded retries. Delivery failures are reported in the result; the error
// is non-nil only for ErrNoProviders or context cancellation.
func (m *Mailer) SendSingle(ctx context.Context, to, subject, html, preferred string) (SendResult, error) {
	ctx, span := tracer.Start(ctx, "mailer.SendSingle", trace.WithAttributes(
		attribute.String("mail.recipient", to),
		attribute.String("mail.preferred_provider", preferred),
	))
	defer span.End()

	if len(m.names) == 0 {
		recordSpanError(span, ErrNoProviders, "no providers")
		return failureResult(ProviderAll, to, ErrNoProviders.Error(), m.now()), ErrNoProviders
	}

	if err := m.limiter.wait(ctx); err != nil {
		recordSpanError(span, err, "rate limiter wait")
		return failureResult(ProviderAll, to, err.Error(), m.now()), ctxErr(ctx, err)
	}

	msg := &provider.Message{
		From:     m.cfg.SenderEmail,
		FromName: m.cfg.SenderName,
		To:       to,
		Subject:  subject,
		HTMLBody: html,
		Tags:     m.cfg.Tags,
	}

	log := logger.Scoped(ctx, m.log)
	lastErr := ""
	for _, name := range m.trialOrder(preferred) {
		if !m.health.ShouldUse(name) {
			log.Debug().Str("provider", name).Msg("skipping unhealthy provider")
			continue
		}

		res, errText, err := m.tryProvider(ctx, log, m.backends[name], msg)
		if err != nil {
			recordSpanError(span, err, "send cancelled")
			return failureResult(ProviderAll, to, err.Error(), m.now()), err
		}
		if res != nil {
			span.SetAttributes(attribute.String("mail.provider", res.Provider))
			span.SetStatus(codes.Ok, "")
			metrics.SendResultsTotal.WithLabelValues("sent").Inc()
			return *res, nil
		}
		lastErr = errText
	}

	if lastErr == "" {
		lastErr = errNoEligible
	}
	metrics.SendResultsTotal.WithLabelValues("failed").Inc()
	span.SetStatus(codes.Error, "all providers exhausted")
	log.Warn().Str("recipient", to).Str("last_error", lastErr).Msg("all providers exhausted")
	return failureResult(ProviderAll, to, lastErr, m.now()), nil
}

// tryProvider runs the retry loop against one provider. It returns a result
// on delivery, or the last error text when the provider is exhausted. A
// non-nil error means the context ended and the whole send must stop.
func (m *Mailer) tryProvider(ctx context.Context, log zerolog.Logger, b Backend, msg *provider.Message) (*SendResult, string, error) {
	lastErr := ""
	rateLimitWaits := 0
	attempts := m.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; {
		if err := ctx.Err(); err != nil {
			return nil, lastErr, err
		}
		if err := m.limiter.waitProvider(ctx, b.Name); err != nil {
			return nil, lastErr, ctxErr(ctx, err)
		}

		a := m.attempt(ctx, b, msg)
		if a.Delivered() {
			res := successResult(b.Name, msg.To, a, m.now())
			return &res, "", nil
		}
		lastErr = fmt.Sprintf("%s: %s", b.Name, a.Detail)

		ev := log.Warn().
			Str("provider", b.Name).
			Str("recipient", msg.To).
			Str("outcome", a.Outcome.String()).
			Int("status", a.StatusCode).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts)

		switch {
		case a.RateLimited():
			if rateLimitWaits >= m.cfg.MaxRateLimitWaits {
				ev.Msg("rate limited too often, moving to next provider")
				return nil, lastErr, nil
			}
			rateLimitWaits++
			wait := a.RetryAfter
			if wait <= 0 {
				wait = m.cfg.DefaultRetryAfter
			}
			wait += m.cfg.RetryAfterMargin
			ev.Dur("retry_after", wait).Msg("rate limited by provider")
			metrics.RateLimitWaitsTotal.WithLabelValues(b.Name).Inc()
			if err := m.sleep(ctx, wait); err != nil {
				return nil, lastErr, err
			}
			// Rate-limit waits do not consume the retry budget.
			continue

		case a.Outcome == provider.Rejected:
			ev.Str("detail", a.Detail).Msg("rejected by provider, moving to next provider")
			return nil, lastErr, nil
		}

		ev.Str("detail", a.Detail).Msg("send attempt failed")
		if attempt < m.cfg.MaxRetries {
			if err := m.sleep(ctx, backoff(attempt)); err != nil {
				return nil, lastErr, err
			}
		}
		attempt++
	}
	return nil, lastErr, nil
}

// attempt performs one delivery attempt and records its outcome.
func (m *Mailer) attempt(ctx context.Context, b Backend, msg *provider.Message) provider.Attempt {
	ctx, span := tracer.Start(ctx, "mailer.attempt", trace.WithAttributes(
		attribute.String("mail.provider", b.Name),
	))
	defer span.End()

	a := b.Sender.Send(ctx, msg)
	at := m.now()

	span.SetAttributes(
		attribute.String("mail.outcome", a.Outcome.String()),
		attribute.Int("mail.status_code", a.StatusCode),
	)
	if !a.Delivered() {
		span.SetStatus(codes.Error, a.Detail)
	}

	metrics.SendAttemptsTotal.WithLabelValues(b.Name, a.Outcome.String()).Inc()
	metrics.SendAttemptDuration.WithLabelValues(b.Name).Observe(a.Elapsed.Seconds())

	h := m.health.Record(b.Name, a.Delivered(), a.Elapsed, a.Detail, at)
	m.publishHealth(b.Name)
	m.log.Debug().
		Str("provider", b.Name).
		Float64("success_rate", h.SuccessRate()).
		Float64("avg_response_time", h.AverageResponseTime).
		Msg("provider health updated")

	m.notify(b.Name, a.Delivered(), at, h)
	return a
}

// backoff returns 2^attempt seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// ctxErr prefers the context's own error so callers can match
// context.Canceled and context.DeadlineExceeded.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("rate limiter: %w", err)
}
