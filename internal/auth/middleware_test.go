package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type verifierFunc func(token string) (string, error)

func (f verifierFunc) Verify(token string) (string, error) { return f(token) }

func staticVerifier(valid, name string) KeyVerifier {
	return verifierFunc(func(token string) (string, error) {
		if token == valid {
			return name, nil
		}
		return "", ErrInvalidKey
	})
}

func TestBearerAuth_ValidKey(t *testing.T) {
	handler := BearerAuth(staticVerifier("valid-key", "ops"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := KeyNameFromContext(r.Context()); name != "ops" {
			t.Errorf("KeyNameFromContext() = %q, want %q", name, "ops")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestBearerAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic some-credentials"},
		{"empty token", "Bearer   "},
		{"invalid key", "Bearer invalid-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuth(staticVerifier("valid-key", "ops"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestBearerAuth_CaseInsensitiveScheme(t *testing.T) {
	handler := BearerAuth(staticVerifier("k", "ops"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer k")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestKeyNameFromContext_NoKey(t *testing.T) {
	if name := KeyNameFromContext(context.Background()); name != "" {
		t.Errorf("KeyNameFromContext() = %q, want empty", name)
	}
}
