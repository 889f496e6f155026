package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sungwon/mailrelay/internal/metrics"
)

type contextKey string

const keyNameKey contextKey = "api_key_name"

// KeyNameFromContext retrieves the authenticated key name from the request
// context. Returns an empty string if the request was not authenticated.
func KeyNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(keyNameKey).(string); ok {
		return name
	}
	return ""
}

// WithKeyName stores the authenticated key name in ctx.
func WithKeyName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyNameKey, name)
}

// KeyVerifier resolves a bearer token to a key name.
type KeyVerifier interface {
	Verify(token string) (string, error)
}

// BearerAuth returns an HTTP middleware that validates Bearer token
// authentication against verifier. On success, the key name is stored in the
// request context.
func BearerAuth(verifier KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization format, expected Bearer <token>")
				return
			}

			token := strings.TrimSpace(parts[1])
			if token == "" {
				unauthorized(w, "empty API key")
				return
			}

			name, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKeyName(r.Context(), name)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
