package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// readyTimeout bounds each dependency check.
const readyTimeout = 2 * time.Second

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthzHandler handles GET /healthz. It only reports that the process is up.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type readyResponse struct {
	Status             string            `json:"status"`
	Checks             map[string]string `json:"checks,omitempty"`
	ProvidersAvailable *int              `json:"providers_available,omitempty"`
}

// ReadyzHandler handles GET /readyz. Every named check must pass for a 200;
// otherwise the reply is 503 with Retry-After and the failing checks marked.
// The mailer's provider count is reported but does not gate readiness, since
// providers can be added through the API itself.
func ReadyzHandler(checks map[string]Pinger, svc MailService) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyResponse{Status: "ok"}
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			err := checks[name].Ping(ctx)
			cancel()
			if err != nil {
				resp.Status = "unavailable"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
		if svc != nil {
			n := svc.Status().ProvidersAvailable
			resp.ProvidersAvailable = &n
		}

		if resp.Status != "ok" {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
