package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// payloadField is the stream entry field holding the JSON job.
	payloadField = "data"
	// promoteEvery is how often due retries move back onto the stream.
	promoteEvery = time.Second
	promoteBatch = 100
)

func streamKey(stream string) string { return "jobs:" + stream }
func dlqKey(stream string) string    { return "dlq:" + stream }
func retryKey(stream string) string  { return "retry:" + stream }

// redisBackend keeps pending jobs in a stream read through a consumer group
// and delayed retries in a sorted set scored by due time.
type redisBackend struct {
	client *redis.Client
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	claimMu   sync.Mutex
	nextClaim time.Time
}

func newRedisBackend(client *redis.Client, cfg Config, log zerolog.Logger) *redisBackend {
	return &redisBackend{client: client, cfg: cfg, log: log, now: time.Now}
}

func (r *redisBackend) Enqueue(ctx context.Context, job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(r.cfg.Stream),
		Values: map[string]any{payloadField: data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", streamKey(r.cfg.Stream), err)
	}
	return id, nil
}

func (r *redisBackend) setup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, streamKey(r.cfg.Stream), r.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", r.cfg.ConsumerGroup, err)
	}
	return nil
}

// receive first reclaims entries abandoned by a dead worker, at most once per
// ClaimIdle/4 across all local workers, then reads new entries.
func (r *redisBackend) receive(ctx context.Context, consumer string) ([]delivery, error) {
	if r.claimDue() {
		msgs, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey(r.cfg.Stream),
			Group:    r.cfg.ConsumerGroup,
			Consumer: consumer,
			MinIdle:  r.cfg.ClaimIdle,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("xautoclaim: %w", err)
		}
		if len(msgs) > 0 {
			r.log.Warn().Str("entry_id", msgs[0].ID).Msg("reclaimed abandoned job")
			return toDeliveries(msgs), nil
		}
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.cfg.ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{streamKey(r.cfg.Stream), ">"},
		Count:    1,
		Block:    r.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var out []delivery
	for _, s := range streams {
		out = append(out, toDeliveries(s.Messages)...)
	}
	return out, nil
}

func (r *redisBackend) claimDue() bool {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()
	now := r.now()
	if now.Before(r.nextClaim) {
		return false
	}
	r.nextClaim = now.Add(r.cfg.ClaimIdle / 4)
	return true
}

func toDeliveries(msgs []redis.XMessage) []delivery {
	out := make([]delivery, 0, len(msgs))
	for _, m := range msgs {
		body, _ := m.Values[payloadField].(string)
		out = append(out, delivery{ref: m.ID, id: m.ID, body: []byte(body)})
	}
	return out
}

// settle acknowledges and deletes the entry so XLEN counts only
// outstanding jobs.
func (r *redisBackend) settle(ctx context.Context, d delivery) error {
	key := streamKey(r.cfg.Stream)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, key, r.cfg.ConsumerGroup, d.ref)
		p.XDel(ctx, key, d.ref)
		return nil
	})
	if err != nil {
		return fmt.Errorf("settle %s: %w", d.ref, err)
	}
	return nil
}

func (r *redisBackend) schedule(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	due := r.now().Add(delay).UnixMilli()
	if err := r.client.ZAdd(ctx, retryKey(r.cfg.Stream), redis.Z{Score: float64(due), Member: data}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", retryKey(r.cfg.Stream), err)
	}
	return nil
}

// housekeep moves due retries back onto the stream until ctx ends.
func (r *redisBackend) housekeep(ctx context.Context) {
	t := time.NewTicker(promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if n, err := r.promote(ctx); err != nil {
			if ctx.Err() == nil {
				r.log.Warn().Err(err).Msg("failed to promote due retries")
			}
		} else if n > 0 {
			r.log.Debug().Int("promoted", n).Msg("due retries requeued")
		}
	}
}

// promote requeues due retries. ZREM decides which process owns a member, so
// several workers can promote concurrently without duplicating jobs.
func (r *redisBackend) promote(ctx context.Context) (int, error) {
	key := retryKey(r.cfg.Stream)
	due, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(r.now().UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}

	moved := 0
	for _, member := range due {
		removed, err := r.client.ZRem(ctx, key, member).Result()
		if err != nil {
			return moved, fmt.Errorf("zrem %s: %w", key, err)
		}
		if removed == 0 {
			continue
		}
		if err := r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(r.cfg.Stream),
			Values: map[string]any{payloadField: member},
		}).Err(); err != nil {
			// Put it back so the retry is not lost.
			r.client.ZAdd(ctx, key, redis.Z{Score: float64(r.now().UnixMilli()), Member: member})
			return moved, fmt.Errorf("xadd retry: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (r *redisBackend) depth(ctx context.Context) (Depth, error) {
	pipe := r.client.Pipeline()
	pending := pipe.XLen(ctx, streamKey(r.cfg.Stream))
	scheduled := pipe.ZCard(ctx, retryKey(r.cfg.Stream))
	dead := pipe.XLen(ctx, dlqKey(r.cfg.Stream))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Depth{}, fmt.Errorf("read queue depth: %w", err)
	}
	return Depth{Pending: pending.Val(), Scheduled: scheduled.Val(), Dead: dead.Val()}, nil
}

// redisDLQ stores dead jobs in their own stream.
type redisDLQ struct {
	rb *redisBackend
}

func (d *redisDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DeadJob{Job: job, FailureReason: reason, MovedAt: d.rb.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	key := dlqKey(d.rb.cfg.Stream)
	if err := d.rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{payloadField: data},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", key, err)
	}
	DLQJobsTotal.Inc()
	JobsProcessedTotal.WithLabelValues("dlq").Inc()
	return nil
}

func (d *redisDLQ) List(ctx context.Context, limit int) ([]DLQEntry, error) {
	msgs, err := d.rb.client.XRangeN(ctx, dlqKey(d.rb.cfg.Stream), "-", "+", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange dlq: %w", err)
	}
	out := make([]DLQEntry, 0, len(msgs))
	for _, m := range msgs {
		if dj, ok := decodeDeadJob(m); ok {
			out = append(out, DLQEntry{EntryID: m.ID, DeadJob: dj})
		}
	}
	return out, nil
}

// Reprocess requeues the named dead entries with a fresh retry budget.
// Unknown or undecodable IDs are skipped.
func (d *redisDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	key := dlqKey(d.rb.cfg.Stream)
	n := 0
	for _, id := range entryIDs {
		msgs, err := d.rb.client.XRange(ctx, key, id, id).Result()
		if err != nil {
			return n, fmt.Errorf("xrange dlq %s: %w", id, err)
		}
		if len(msgs) == 0 {
			continue
		}
		dj, ok := decodeDeadJob(msgs[0])
		if !ok {
			continue
		}
		dj.Job.RetryCount = 0
		dj.Job.NotBefore = time.Time{}
		if _, err := d.rb.Enqueue(ctx, dj.Job); err != nil {
			return n, fmt.Errorf("requeue job %s: %w", dj.Job.ID, err)
		}
		if err := d.rb.client.XDel(ctx, key, id).Err(); err != nil {
			return n, fmt.Errorf("xdel dlq %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

func decodeDeadJob(m redis.XMessage) (DeadJob, bool) {
	data, ok := m.Values[payloadField].(string)
	if !ok {
		return DeadJob{}, false
	}
	var dj DeadJob
	if err := json.Unmarshal([]byte(data), &dj); err != nil || dj.Job == nil {
		return DeadJob{}, false
	}
	return dj, true
}
