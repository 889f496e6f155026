package mailer

import (
	"sort"
	"sync"
	"time"
)

const (
	// circuitBreakerThreshold is the number of consecutive failures after
	// which a provider is suspended until it succeeds again.
	circuitBreakerThreshold = 3
	// minSamples is the attempt count a provider must exceed before its
	// success rate can suspend it.
	minSamples = 10
	// minSuccessRate is the lowest acceptable success rate once minSamples
	// has been exceeded.
	minSuccessRate = 0.5
)

// Health holds the rolling counters of one provider.
type Health struct {
	Name                string    `json:"name"`
	Enabled             bool      `json:"enabled"`
	SuccessCount        int64     `json:"success_count"`
	FailureCount        int64     `json:"failure_count"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	AverageResponseTime float64   `json:"average_response_time"`
	LastError           string    `json:"last_error"`
	LastUsed            time.Time `json:"last_used"`
}

// Total returns the number of recorded attempts.
func (h Health) Total() int64 {
	return h.SuccessCount + h.FailureCount
}

// SuccessRate returns the fraction of successful attempts, 0 when nothing
// has been recorded yet.
func (h Health) SuccessRate() float64 {
	total := h.Total()
	if total == 0 {
		return 0
	}
	return float64(h.SuccessCount) / float64(total)
}

// ShouldUse reports whether the provider is currently eligible.
func (h Health) ShouldUse() bool {
	if !h.Enabled {
		return false
	}
	if h.ConsecutiveFailures >= circuitBreakerThreshold {
		return false
	}
	if h.Total() > minSamples && h.SuccessRate() < minSuccessRate {
		return false
	}
	return true
}

// Tracker maintains Health for a fixed set of providers. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Health
}

// NewTracker creates a tracker with an enabled, empty entry per name.
func NewTracker(names ...string) *Tracker {
	t := &Tracker{entries: make(map[string]*Health, len(names))}
	for _, name := range names {
		t.entries[name] = &Health{Name: name, Enabled: true}
	}
	return t
}

// entry returns the entry for name, creating it if needed. Callers must hold
// the write lock.
func (t *Tracker) entry(name string) *Health {
	h, ok := t.entries[name]
	if !ok {
		h = &Health{Name: name, Enabled: true}
		t.entries[name] = h
	}
	return h
}

// Record applies the outcome of one attempt and returns the updated counters.
func (t *Tracker) Record(name string, success bool, elapsed time.Duration, errText string, at time.Time) Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.entry(name)
	h.LastUsed = at
	if success {
		h.SuccessCount++
		h.ConsecutiveFailures = 0
		n := float64(h.Total())
		h.AverageResponseTime = (h.AverageResponseTime*(n-1) + elapsed.Seconds()) / n
	} else {
		h.FailureCount++
		h.ConsecutiveFailures++
		h.LastError = errText
	}
	return *h
}

// ShouldUse reports whether name is eligible. Unknown providers are not.
func (t *Tracker) ShouldUse(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.entries[name]
	if !ok {
		return false
	}
	return h.ShouldUse()
}

// SuccessRate returns the success rate of name, 0 if unknown.
func (t *Tracker) SuccessRate(name string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.entries[name]; ok {
		return h.SuccessRate()
	}
	return 0
}

// Get returns a copy of the counters for name.
func (t *Tracker) Get(name string) (Health, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.entries[name]
	if !ok {
		return Health{}, false
	}
	return *h, true
}

// SetEnabled toggles eligibility of name without touching its counters.
func (t *Tracker) SetEnabled(name string, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(name).Enabled = enabled
}

// Restore replaces the counters of h.Name, keeping the current enabled flag.
func (t *Tracker) Restore(h Health) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.entry(h.Name)
	h.Enabled = cur.Enabled
	*cur = h
}

// Snapshot returns copies of all entries ordered by name.
func (t *Tracker) Snapshot() []Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Health, 0, len(t.entries))
	for _, h := range t.entries {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
