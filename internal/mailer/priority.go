package mailer

import "sort"

// successRateWeight bounds how far observed reliability can move a provider
// away from its static priority.
const successRateWeight = 10

// AdjustedPriority combines the static priority with a success rate; lower
// values are preferred.
func AdjustedPriority(static int, successRate float64) float64 {
	return float64(static) - successRate*successRateWeight
}

// priorityOrder returns the names of currently eligible providers, either in
// the configured explicit order or sorted by adjusted priority. It is
// recomputed on every call so the order tracks live health.
func (m *Mailer) priorityOrder() []string {
	if len(m.cfg.ProviderOrder) > 0 {
		out := make([]string, 0, len(m.cfg.ProviderOrder))
		seen := make(map[string]bool, len(m.cfg.ProviderOrder))
		for _, name := range m.cfg.ProviderOrder {
			if _, ok := m.backends[name]; !ok || seen[name] {
				continue
			}
			seen[name] = true
			if m.health.ShouldUse(name) {
				out = append(out, name)
			}
		}
		return out
	}

	type ranked struct {
		name     string
		adjusted float64
	}
	candidates := make([]ranked, 0, len(m.names))
	for _, name := range m.names {
		if !m.health.ShouldUse(name) {
			continue
		}
		candidates = append(candidates, ranked{
			name:     name,
			adjusted: AdjustedPriority(m.backends[name].Priority, m.health.SuccessRate(name)),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].adjusted < candidates[j].adjusted
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// PriorityOrder exposes the current trial order for status reporting.
func (m *Mailer) PriorityOrder() []string {
	return m.priorityOrder()
}

// trialOrder puts preferred first when it is a loaded provider, followed by
// the priority order. Eligibility of preferred is checked at selection time.
func (m *Mailer) trialOrder(preferred string) []string {
	order := m.priorityOrder()
	if _, ok := m.backends[preferred]; !ok {
		return order
	}
	out := make([]string, 0, len(order)+1)
	out = append(out, preferred)
	for _, name := range order {
		if name != preferred {
			out = append(out, name)
		}
	}
	return out
}
