package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/metrics"
)

// sinkTimeout bounds one asynchronous stats or health persistence call.
const sinkTimeout = 5 * time.Second

// notify forwards an attempt outcome to the stats sink and health store
// without blocking the send. Failures are logged and counted only.
func (m *Mailer) notify(name string, success bool, at time.Time, h Health) {
	if m.healthWriter != nil {
		m.healthWriter.enqueue(h)
	}
	if m.stats == nil {
		return
	}

	m.sinkWG.Add(1)
	go func() {
		defer m.sinkWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := m.stats.RecordProviderOutcome(ctx, name, success, at); err != nil {
			metrics.StatsSinkErrorsTotal.Inc()
			m.log.Warn().Err(err).Str("provider", name).Msg("failed to record provider stats")
		}
	}()
}

// healthWriter persists health snapshots one at a time. Pending snapshots are
// coalesced per provider and a snapshot never replaces one with more
// recorded attempts, so the store only moves forward.
type healthWriter struct {
	store HealthStore
	log   zerolog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string]Health
	saved   map[string]int64
	running bool
}

func newHealthWriter(store HealthStore, log zerolog.Logger) *healthWriter {
	w := &healthWriter{
		store:   store,
		log:     log,
		pending: make(map[string]Health),
		saved:   make(map[string]int64),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

func (w *healthWriter) enqueue(h Health) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[h.Name]; ok && p.Total() >= h.Total() {
		return
	}
	w.pending[h.Name] = h
	if !w.running {
		w.running = true
		go w.run()
	}
}

func (w *healthWriter) run() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.running = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		batch := w.pending
		w.pending = make(map[string]Health, len(batch))
		w.mu.Unlock()

		for name, h := range batch {
			w.mu.Lock()
			last, seen := w.saved[name]
			w.mu.Unlock()
			if seen && h.Total() <= last {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			err := w.store.Save(ctx, h)
			cancel()
			if err != nil {
				w.log.Warn().Err(err).Str("provider", name).Msg("failed to persist provider health")
				continue
			}
			w.mu.Lock()
			w.saved[name] = h.Total()
			w.mu.Unlock()
		}
	}
}

// flush blocks until every enqueued snapshot has been written or dropped.
func (w *healthWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.running {
		w.idle.Wait()
	}
}
