package mailer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/metrics"
)

// Personalize substitutes {{name}} and {{email}} in tmpl.
func Personalize(tmpl string, r Recipient) string {
	return strings.NewReplacer("{{name}}", r.Name, "{{email}}", r.Email).Replace(tmpl)
}

// SendBulk delivers one message per recipient in sequential batches, each
// batch fanned out over a bounded worker pool. Every recipient ends up in
// exactly one of report.Sent or report.Failed. If ctx ends mid-send, the
// remaining recipients are reported as failed and ctx.Err() is returned with
// the report.
func (m *Mailer) SendBulk(ctx context.Context, recipients []Recipient, subject, htmlTemplate string, opts BulkOptions) (*BulkReport, error) {
	if len(m.names) == 0 {
		return nil, ErrNoProviders
	}

	ctx, span := tracer.Start(ctx, "mailer.SendBulk")
	defer span.End()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = m.cfg.BatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = m.cfg.Concurrency
	}
	span.SetAttributes(
		attribute.Int("mail.recipients", len(recipients)),
		attribute.Int("mail.batch_size", batchSize),
		attribute.Int("mail.concurrency", concurrency),
	)

	start := time.Now()
	total := len(recipients)
	c := &collector{total: total, progress: opts.Progress}
	log := logger.Scoped(ctx, m.log)

	log.Info().Int("total", total).Int("batch_size", batchSize).Msg("starting bulk send")

	sem := semaphore.NewWeighted(int64(concurrency))
	var cancelled error

	for batchStart := 0; batchStart < total; batchStart += batchSize {
		batchEnd := min(batchStart+batchSize, total)
		batch := recipients[batchStart:batchEnd]

		if cancelled == nil {
			cancelled = ctx.Err()
		}
		if cancelled != nil {
			c.abandon(batch, cancelled, m.now())
			continue
		}

		log.Info().Int("from", batchStart+1).Int("to", batchEnd).Int("total", total).Msg("processing batch")
		sentBefore, failedBefore := c.counts()

		var wg sync.WaitGroup
		for i, r := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				cancelled = err
				c.abandon(batch[i:], err, m.now())
				break
			}
			wg.Add(1)
			go func(r Recipient) {
				defer wg.Done()
				defer sem.Release(1)
				c.add(m.sendOne(ctx, r, subject, htmlTemplate, opts))
			}(r)
		}
		wg.Wait()

		sentAfter, failedAfter := c.counts()
		batchSent := sentAfter - sentBefore
		log.Info().
			Int("sent", batchSent).
			Int("failed", failedAfter-failedBefore).
			Float64("success_rate", percent(batchSent, len(batch))).
			Msg("batch completed")
	}

	report := c.report(m.now())
	status := "completed"
	if cancelled != nil {
		status = "cancelled"
		recordSpanError(span, cancelled, "bulk send cancelled")
	}
	metrics.BulkSendsTotal.WithLabelValues(status).Inc()
	metrics.BulkSendDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Int("total", report.Total).
		Int("sent", len(report.Sent)).
		Int("failed", len(report.Failed)).
		Float64("success_rate", report.SuccessRate).
		Str("status", status).
		Msg("bulk send completed")

	if cancelled != nil {
		return report, cancelled
	}
	return report, nil
}

// sendOne personalizes and sends to one recipient. A panic anywhere below is
// turned into a failed result so a single recipient never aborts the batch.
func (m *Mailer) sendOne(ctx context.Context, r Recipient, subject, tmpl string, opts BulkOptions) (res SendResult) {
	defer func() {
		if p := recover(); p != nil {
			m.log.Error().Str("recipient", r.Email).Interface("panic", p).Msg("unexpected error sending")
			res = failureResult(ProviderUnknown, r.Email, fmt.Sprintf("unexpected_error: %v", p), m.now())
		}
	}()

	html := tmpl
	if !opts.SkipPersonalization {
		html = Personalize(tmpl, r)
	}

	res, err := m.SendSingle(ctx, r.Email, subject, html, opts.Provider)
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	return res
}

// collector aggregates results from concurrent workers.
type collector struct {
	mu       sync.Mutex
	total    int
	sent     []SendResult
	failed   []SendResult
	progress ProgressFunc
}

func (c *collector) add(r SendResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Success {
		c.sent = append(c.sent, r)
	} else {
		c.failed = append(c.failed, r)
	}
	if c.progress != nil {
		c.progress(len(c.sent)+len(c.failed), c.total)
	}
}

// abandon records recipients that were never dispatched.
func (c *collector) abandon(rs []Recipient, err error, at time.Time) {
	for _, r := range rs {
		c.add(failureResult(ProviderUnknown, r.Email, err.Error(), at))
	}
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent), len(c.failed)
}

func (c *collector) report(at time.Time) *BulkReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	used := []string{}
	for _, r := range c.sent {
		if !seen[r.Provider] {
			seen[r.Provider] = true
			used = append(used, r.Provider)
		}
	}
	sort.Strings(used)

	sent := c.sent
	if sent == nil {
		sent = []SendResult{}
	}
	failed := c.failed
	if failed == nil {
		failed = []SendResult{}
	}

	return &BulkReport{
		Sent:          sent,
		Failed:        failed,
		Total:         c.total,
		SuccessRate:   percent(len(c.sent), c.total),
		ProvidersUsed: used,
		CompletedAt:   timestamp(at),
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
