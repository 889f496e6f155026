package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mailrelay/internal/logger"
)

// receiveErrorPause throttles a worker whose backend keeps failing.
const receiveErrorPause = time.Second

// Consumer runs WorkerCount workers against one backend. Each delivery is
// handled once and then settled; failures are rescheduled on the retry
// schedule until MaxRetries, then dead-lettered. A job interrupted by
// shutdown is left unsettled so the backend redelivers it.
type Consumer struct {
	b       backend
	dlq     DeadLetterQueue
	handler JobHandler
	retry   *RetryStrategy
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newConsumer(b backend, dlq DeadLetterQueue, handler JobHandler, cfg Config, log zerolog.Logger) *Consumer {
	return &Consumer{
		b:       b,
		dlq:     dlq,
		handler: handler,
		retry:   NewRetryStrategy(cfg.MaxRetries, cfg.RetrySchedule...),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Start prepares the backend and launches the workers. It returns once they
// are running.
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("queue consumer has no job handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("queue consumer already started")
	}
	if err := c.b.setup(ctx); err != nil {
		return fmt.Errorf("prepare queue: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	host, _ := os.Hostname()
	for i := range c.cfg.WorkerCount {
		name := fmt.Sprintf("%s-%d-%d", host, os.Getpid(), i)
		g.Go(func() error {
			c.work(gctx, name)
			return nil
		})
	}
	g.Go(func() error {
		c.b.housekeep(gctx)
		return nil
	})

	c.done = make(chan struct{})
	go func() {
		_ = g.Wait()
		close(c.done)
	}()

	c.log.Info().Int("workers", c.cfg.WorkerCount).Msg("queue consumer started")
	return nil
}

// Stop cancels the workers and waits for in-flight jobs, bounded by ctx and
// ShutdownTimeout.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()

	t := time.NewTimer(c.cfg.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-done:
		c.log.Info().Msg("queue consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("queue consumer shutdown timed out after %s", c.cfg.ShutdownTimeout)
	}
}

func (c *Consumer) work(ctx context.Context, name string) {
	log := c.log.With().Str("consumer", name).Logger()
	for ctx.Err() == nil {
		ds, err := c.b.receive(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveErrorPause):
			}
			continue
		}
		for _, d := range ds {
			c.process(ctx, d, log)
		}
	}
}

// process handles one delivery end to end.
func (c *Consumer) process(ctx context.Context, d delivery, log zerolog.Logger) {
	// Settling and rescheduling must finish even while shutting down.
	bg := context.WithoutCancel(ctx)

	var job Job
	if err := json.Unmarshal(d.body, &job); err != nil || job.ID == "" {
		log.Error().Err(err).Str("message_id", d.id).Msg("dropping malformed job")
		JobsProcessedTotal.WithLabelValues("malformed").Inc()
		c.settle(bg, d, log)
		return
	}
	log = log.With().Str("job_id", job.ID).Int("retry_count", job.RetryCount).Logger()

	// Backends with a short delay ceiling hand jobs back early.
	if wait := job.NotBefore.Sub(c.now()); wait > 0 {
		if err := c.b.schedule(bg, &job, wait); err != nil {
			log.Error().Err(err).Msg("failed to defer early job")
			return
		}
		c.settle(bg, d, log)
		return
	}
	job.NotBefore = time.Time{}

	start := c.now()
	jctx, cancel := context.WithTimeout(logger.WithCorrelationID(ctx, job.ID), c.cfg.ProcessTimeout)
	err := c.handler.HandleJob(jctx, &job)
	cancel()
	JobProcessingDuration.Observe(c.now().Sub(start).Seconds())

	switch {
	case err == nil:
		JobsProcessedTotal.WithLabelValues("completed").Inc()
		log.Info().Dur("took", c.now().Sub(start)).Msg("job completed")
	case ctx.Err() != nil:
		log.Warn().Err(err).Msg("job interrupted by shutdown, leaving it for redelivery")
		return
	default:
		if ferr := c.fail(bg, &job, err, log); ferr != nil {
			// Without a retry or DLQ record the delivery must stay.
			log.Error().Err(ferr).Msg("failed to record job failure")
			return
		}
	}
	c.settle(bg, d, log)
}

// fail reschedules job or moves it to the DLQ.
func (c *Consumer) fail(ctx context.Context, job *Job, cause error, log zerolog.Logger) error {
	job.RetryCount++
	if c.retry.ShouldRetry(job.RetryCount) {
		backoff := c.retry.NextBackoff(job.RetryCount - 1)
		log.Warn().Err(cause).Dur("backoff", backoff).Msg("job failed, scheduling retry")
		if err := c.b.schedule(ctx, job, backoff); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		JobsProcessedTotal.WithLabelValues("retried").Inc()
		return nil
	}

	log.Warn().Err(cause).Msg("retries exhausted, moving job to DLQ")
	return c.dlq.MoveToDLQ(ctx, job, cause.Error())
}

func (c *Consumer) settle(ctx context.Context, d delivery, log zerolog.Logger) {
	if err := c.b.settle(ctx, d); err != nil {
		log.Error().Err(err).Str("message_id", d.id).Msg("failed to settle delivery")
	}
}
