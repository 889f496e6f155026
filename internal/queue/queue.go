package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/metrics"
)

// delivery is one raw job payload handed to a consumer by a backend.
type delivery struct {
	// ref identifies the delivery to settle: a stream entry ID or an SQS
	// receipt handle.
	ref  string
	id   string
	body []byte
}

// Depth is a point-in-time count of jobs by state.
type Depth struct {
	Pending   int64 `json:"pending"`
	Scheduled int64 `json:"scheduled"`
	Dead      int64 `json:"dead"`
}

// backend is one queue implementation.
type backend interface {
	Enqueuer
	// setup prepares server-side state before consumers start.
	setup(ctx context.Context) error
	// receive blocks briefly and returns zero or more deliveries.
	receive(ctx context.Context, consumer string) ([]delivery, error)
	// settle removes a processed delivery so it is not redelivered.
	settle(ctx context.Context, d delivery) error
	// schedule makes job available again after delay.
	schedule(ctx context.Context, job *Job, delay time.Duration) error
	// housekeep runs until ctx ends; backends without background work return at once.
	housekeep(ctx context.Context)
	depth(ctx context.Context) (Depth, error)
}

// deadLetters is the DLQ side of a backend.
type deadLetters interface {
	DeadLetterQueue
	List(ctx context.Context, limit int) ([]DLQEntry, error)
}

// DeadJob wraps a failed job with failure metadata.
type DeadJob struct {
	Job           *Job      `json:"job"`
	FailureReason string    `json:"failure_reason"`
	MovedAt       time.Time `json:"moved_at"`
}

// DLQEntry is a dead job with the ID Reprocess accepts.
type DLQEntry struct {
	EntryID string `json:"entry_id"`
	DeadJob
}

// Queue is an opened backend with its dead letter side.
type Queue struct {
	cfg   Config
	b     backend
	dlq   deadLetters
	close func() error
	log   zerolog.Logger
}

// Open connects the backend named by cfg.Type. Opening does no I/O for
// Redis; SQS loads AWS credentials.
func Open(cfg Config, log zerolog.Logger) (*Queue, error) {
	cfg = cfg.withDefaults()
	log = log.With().Str("component", "queue").Str("queue_type", cfg.Type).Logger()

	switch cfg.Type {
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rb := newRedisBackend(client, cfg, log)
		return &Queue{cfg: cfg, b: rb, dlq: &redisDLQ{rb: rb}, close: client.Close, log: log}, nil

	case "sqs":
		if cfg.SQSQueueURL == "" || cfg.SQSDLQURL == "" {
			return nil, errors.New("sqs queue requires sqs_queue_url and sqs_dlq_url")
		}
		client, err := newAWSSQSClient(cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return newSQSQueue(client, cfg, log), nil

	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}

func newSQSQueue(client sqsAPI, cfg Config, log zerolog.Logger) *Queue {
	sb := newSQSBackend(client, cfg)
	return &Queue{
		cfg:   cfg,
		b:     sb,
		dlq:   &sqsDLQ{client: client, url: cfg.SQSDLQURL, enqueuer: sb, log: log, now: time.Now},
		close: func() error { return nil },
		log:   log,
	}
}

// Enqueue publishes job and returns the backend's message ID.
func (q *Queue) Enqueue(ctx context.Context, job *Job) (string, error) {
	id, err := q.b.Enqueue(ctx, job)
	if err != nil {
		return "", err
	}
	JobsEnqueuedTotal.Inc()
	return id, nil
}

// DLQ returns the dead letter queue.
func (q *Queue) DLQ() DeadLetterQueue { return q.dlq }

// DeadJobs lists up to limit dead jobs, oldest first where the backend can
// tell.
func (q *Queue) DeadJobs(ctx context.Context, limit int) ([]DLQEntry, error) {
	return q.dlq.List(ctx, limit)
}

// Reprocess requeues dead jobs with a fresh retry budget.
func (q *Queue) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	return q.dlq.Reprocess(ctx, entryIDs)
}

// Consumer returns a Dequeuer that feeds jobs to handler.
func (q *Queue) Consumer(handler JobHandler) *Consumer {
	return newConsumer(q.b, q.dlq, handler, q.cfg, q.log)
}

// Depth counts jobs by state.
func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	return q.b.depth(ctx)
}

// ReportDepth publishes Depth to the queue_depth gauge every interval until
// ctx ends.
func (q *Queue) ReportDepth(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if d, err := q.Depth(ctx); err != nil {
			if ctx.Err() == nil {
				q.log.Warn().Err(err).Msg("failed to read queue depth")
			}
		} else {
			metrics.QueueDepth.WithLabelValues("pending").Set(float64(d.Pending))
			metrics.QueueDepth.WithLabelValues("scheduled").Set(float64(d.Scheduled))
			metrics.QueueDepth.WithLabelValues("dlq").Set(float64(d.Dead))
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Close releases the backend connection.
func (q *Queue) Close() error { return q.close() }
