package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/registry"
)

// maxBodyBytes caps request bodies; bulk jobs with tens of thousands of
// recipients fit comfortably.
const maxBodyBytes = 16 << 20

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondJSON encodes v before touching the response so an encoding failure
// can still become a clean 500.
func respondJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: "internal server error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

func respondValidationErrors(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Details: details})
}

// respondRegistryError maps registry errors onto HTTP statuses.
func respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "provider not found")
	case errors.Is(err, registry.ErrDuplicate):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrUnknownType),
		errors.Is(err, registry.ErrMissingCredentials),
		errors.Is(err, registry.ErrNoChanges):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// refreshAfterMutation reloads the mailer's providers. A failed reload is
// logged; the registry change itself already succeeded.
func refreshAfterMutation(ctx context.Context, svc MailService) {
	if svc == nil {
		return
	}
	if err := svc.Refresh(ctx); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("provider reload after registry change failed")
	}
}
