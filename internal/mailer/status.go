package mailer

// Module status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// ProviderDetail is the per-provider part of a Status.
type ProviderDetail struct {
	Name                string  `json:"name"`
	Enabled             bool    `json:"enabled"`
	Healthy             bool    `json:"healthy"`
	Priority            int     `json:"priority"`
	SuccessRate         float64 `json:"success_rate"`
	TotalRequests       int64   `json:"total_requests"`
	AverageResponseTime float64 `json:"average_response_time"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	LastError           string  `json:"last_error"`
}

// Status is an operational snapshot of the mailer.
type Status struct {
	Module             string           `json:"module"`
	Status             string           `json:"status"`
	Message            string           `json:"message,omitempty"`
	ProvidersAvailable int              `json:"providers_available"`
	ProvidersHealthy   int              `json:"providers_healthy"`
	TotalRequests      int64            `json:"total_requests"`
	OverallSuccessRate float64          `json:"overall_success_rate"`
	PriorityOrder      []string         `json:"priority_order"`
	Timestamp          string           `json:"timestamp"`
	ProviderDetails    []ProviderDetail `json:"provider_details"`
}

// Status aggregates provider health into a module status.
func (m *Mailer) Status() Status {
	st := Status{
		Module:             "mailer",
		ProvidersAvailable: len(m.names),
		PriorityOrder:      m.priorityOrder(),
		Timestamp:          timestamp(m.now()),
		ProviderDetails:    []ProviderDetail{},
	}

	var success int64
	for _, h := range m.health.Snapshot() {
		success += h.SuccessCount
		st.TotalRequests += h.Total()
		healthy := h.ShouldUse()
		if healthy {
			st.ProvidersHealthy++
		}
		st.ProviderDetails = append(st.ProviderDetails, ProviderDetail{
			Name:                h.Name,
			Enabled:             h.Enabled,
			Healthy:             healthy,
			Priority:            m.backends[h.Name].Priority,
			SuccessRate:         h.SuccessRate(),
			TotalRequests:       h.Total(),
			AverageResponseTime: h.AverageResponseTime,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastError:           h.LastError,
		})
	}
	if st.TotalRequests > 0 {
		st.OverallSuccessRate = float64(success) / float64(st.TotalRequests)
	}

	switch {
	case st.ProvidersAvailable == 0:
		st.Status = StatusError
		st.Message = "No email providers configured"
	case st.ProvidersHealthy == 0:
		st.Status = StatusError
		st.Message = "No healthy providers available"
	case st.TotalRequests > minSamples && st.OverallSuccessRate < minSuccessRate:
		st.Status = StatusDegraded
		st.Message = "Low success rate"
	default:
		st.Status = StatusHealthy
	}
	return st
}
