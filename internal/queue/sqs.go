package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// maxSQSDelay is the longest DelaySeconds SQS accepts.
	maxSQSDelay = 15 * time.Minute
	// maxSQSBatch is the most messages one ReceiveMessage call returns.
	maxSQSBatch = 10
)

// sqsBackend relies on SQS for redelivery: an unsettled message reappears
// once its visibility timeout lapses.
type sqsBackend struct {
	client sqsAPI
	cfg    Config
	now    func() time.Time
}

func newSQSBackend(client sqsAPI, cfg Config) *sqsBackend {
	return &sqsBackend{client: client, cfg: cfg, now: time.Now}
}

func (s *sqsBackend) Enqueue(ctx context.Context, job *Job) (string, error) {
	return s.send(ctx, s.cfg.SQSQueueURL, job, 0)
}

func (s *sqsBackend) send(ctx context.Context, url string, v any, delay time.Duration) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	out, err := s.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     url,
		MessageBody:  string(data),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("sqs send: %w", err)
	}
	return out.MessageID, nil
}

func (s *sqsBackend) setup(context.Context) error { return nil }

func (s *sqsBackend) receive(ctx context.Context, _ string) ([]delivery, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            s.cfg.SQSQueueURL,
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     s.cfg.SQSWaitTime,
		VisibilityTimeout:   s.cfg.SQSVisTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	ds := make([]delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		ds = append(ds, delivery{ref: m.ReceiptHandle, id: m.MessageID, body: []byte(m.Body)})
	}
	return ds, nil
}

func (s *sqsBackend) settle(ctx context.Context, d delivery) error {
	if err := s.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      s.cfg.SQSQueueURL,
		ReceiptHandle: d.ref,
	}); err != nil {
		return fmt.Errorf("sqs delete %s: %w", d.id, err)
	}
	return nil
}

// schedule sends job back with a delay. Delays beyond the SQS ceiling are
// chained: the job carries NotBefore and the consumer defers it again.
func (s *sqsBackend) schedule(ctx context.Context, job *Job, delay time.Duration) error {
	if delay > maxSQSDelay {
		job.NotBefore = s.now().Add(delay).UTC()
		delay = maxSQSDelay
	} else {
		job.NotBefore = time.Time{}
	}
	_, err := s.send(ctx, s.cfg.SQSQueueURL, job, delay)
	return err
}

func (s *sqsBackend) housekeep(context.Context) {}

func (s *sqsBackend) depth(ctx context.Context) (Depth, error) {
	visible, delayed, err := s.client.QueueCounts(ctx, s.cfg.SQSQueueURL)
	if err != nil {
		return Depth{}, fmt.Errorf("sqs queue attributes: %w", err)
	}
	dead, deadDelayed, err := s.client.QueueCounts(ctx, s.cfg.SQSDLQURL)
	if err != nil {
		return Depth{}, fmt.Errorf("sqs dlq attributes: %w", err)
	}
	return Depth{Pending: visible, Scheduled: delayed, Dead: dead + deadDelayed}, nil
}

// sqsDLQ is a second SQS queue holding DeadJob messages. SQS cannot fetch a
// message by ID, so Reprocess drains by count instead.
type sqsDLQ struct {
	client   sqsAPI
	url      string
	enqueuer Enqueuer
	log      zerolog.Logger
	now      func() time.Time
}

func (d *sqsDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DeadJob{Job: job, FailureReason: reason, MovedAt: d.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	if _, err := d.client.SendMessage(ctx, &sqsSendInput{QueueURL: d.url, MessageBody: string(data)}); err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}
	DLQJobsTotal.Inc()
	JobsProcessedTotal.WithLabelValues("dlq").Inc()
	return nil
}

// List peeks at up to limit dead jobs without hiding them from other readers.
// Peeked messages stay visible, so a round that yields nothing new ends it.
func (d *sqsDLQ) List(ctx context.Context, limit int) ([]DLQEntry, error) {
	var out []DLQEntry
	seen := make(map[string]bool)
	for len(out) < limit {
		msgs, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.url,
			MaxNumberOfMessages: int32(min(limit-len(out), maxSQSBatch)),
			VisibilityTimeout:   0,
		})
		if err != nil {
			return nil, fmt.Errorf("sqs receive dlq: %w", err)
		}
		fresh := 0
		for _, m := range msgs.Messages {
			if seen[m.MessageID] {
				continue
			}
			seen[m.MessageID] = true
			fresh++
			var dj DeadJob
			if err := json.Unmarshal([]byte(m.Body), &dj); err != nil || dj.Job == nil {
				continue
			}
			out = append(out, DLQEntry{EntryID: m.MessageID, DeadJob: dj})
		}
		if fresh == 0 {
			break
		}
	}
	return out, nil
}

// Reprocess moves up to len(entryIDs) dead jobs back to the main queue. The
// IDs only set the count.
func (d *sqsDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	want := len(entryIDs)
	n := 0
	for n < want {
		msgs, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.url,
			MaxNumberOfMessages: int32(min(want-n, maxSQSBatch)),
		})
		if err != nil {
			return n, fmt.Errorf("sqs receive dlq: %w", err)
		}
		if len(msgs.Messages) == 0 {
			break
		}
		for _, m := range msgs.Messages {
			var dj DeadJob
			if err := json.Unmarshal([]byte(m.Body), &dj); err != nil || dj.Job == nil {
				d.log.Warn().Str("message_id", m.MessageID).Msg("skipping undecodable dead job")
				continue
			}
			dj.Job.RetryCount = 0
			dj.Job.NotBefore = time.Time{}
			if _, err := d.enqueuer.Enqueue(ctx, dj.Job); err != nil {
				return n, fmt.Errorf("requeue job %s: %w", dj.Job.ID, err)
			}
			if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{QueueURL: d.url, ReceiptHandle: m.ReceiptHandle}); err != nil {
				return n, fmt.Errorf("sqs delete dlq %s: %w", m.MessageID, err)
			}
			n++
		}
	}
	return n, nil
}
