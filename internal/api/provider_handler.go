package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/provider"
	"github.com/sungwon/mailrelay/internal/registry"
)

// providerResponse is the JSON response for a provider. Credential values are
// never returned, only which fields are set.
type providerResponse struct {
	registry.Provider
	CredentialFields []string `json:"credential_fields"`
}

func toProviderResponse(p registry.Provider) providerResponse {
	fields := p.CredentialFields()
	if fields == nil {
		fields = []string{}
	}
	return providerResponse{Provider: p, CredentialFields: fields}
}

// CreateProviderHandler handles POST /api/v1/providers.
func CreateProviderHandler(reg ProviderRegistry, svc MailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registry.AddRequest
		if err := decodeJSON(r, w, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		p, err := reg.Add(r.Context(), req)
		if err != nil {
			respondRegistryError(w, err)
			return
		}
		refreshAfterMutation(r.Context(), svc)

		respondJSON(w, http.StatusCreated, toProviderResponse(p))
	}
}

// ListProvidersHandler handles GET /api/v1/providers[?enabled=true].
func ListProvidersHandler(reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))

		providers, err := reg.List(r.Context(), enabledOnly)
		if err != nil {
			respondRegistryError(w, err)
			return
		}

		result := make([]providerResponse, len(providers))
		for i, p := range providers {
			result[i] = toProviderResponse(p)
		}

		respondJSON(w, http.StatusOK, result)
	}
}

// GetProviderHandler handles GET /api/v1/providers/{name}.
func GetProviderHandler(reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reg.Get(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			respondRegistryError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, toProviderResponse(p))
	}
}

// UpdateProviderHandler handles PUT /api/v1/providers/{name}. Absent fields
// are left unchanged.
func UpdateProviderHandler(reg ProviderRegistry, svc MailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u registry.Update
		if err := decodeJSON(r, w, &u); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		p, err := reg.Update(r.Context(), chi.URLParam(r, "name"), u)
		if err != nil {
			respondRegistryError(w, err)
			return
		}
		refreshAfterMutation(r.Context(), svc)

		respondJSON(w, http.StatusOK, toProviderResponse(p))
	}
}

// DeleteProviderHandler handles DELETE /api/v1/providers/{name}.
func DeleteProviderHandler(reg ProviderRegistry, svc MailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Remove(r.Context(), chi.URLParam(r, "name")); err != nil {
			respondRegistryError(w, err)
			return
		}
		refreshAfterMutation(r.Context(), svc)

		w.WriteHeader(http.StatusNoContent)
	}
}

// SetProviderEnabledHandler handles POST /api/v1/providers/{name}/enable and
// /disable.
func SetProviderEnabledHandler(reg ProviderRegistry, svc MailService, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		set := reg.Disable
		if enabled {
			set = reg.Enable
		}
		p, err := set(r.Context(), name)
		if err != nil {
			respondRegistryError(w, err)
			return
		}
		refreshAfterMutation(r.Context(), svc)

		respondJSON(w, http.StatusOK, toProviderResponse(p))
	}
}

// ProviderStatsHandler handles GET /api/v1/providers/{name}/stats[?days=N].
func ProviderStatsHandler(reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := registry.DefaultHistoryDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 366 {
				respondError(w, http.StatusBadRequest, "days must be between 1 and 366")
				return
			}
			days = n
		}

		stats, err := reg.Stats(r.Context(), chi.URLParam(r, "name"), days)
		if err != nil {
			respondRegistryError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, stats)
	}
}

// ReloadProvidersHandler handles POST /api/v1/providers/reload.
func ReloadProvidersHandler(svc MailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Refresh(r.Context()); err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("provider reload failed")
			respondError(w, http.StatusInternalServerError, "provider reload failed")
			return
		}

		st := svc.Status()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "reloaded",
			"providers":      st.ProvidersAvailable,
			"priority_order": st.PriorityOrder,
		})
	}
}

// ProviderTemplatesHandler handles GET /api/v1/provider-templates.
func ProviderTemplatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, provider.Templates())
	}
}
