package avatar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

func TestTokenIssuerCreateToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/streaming.create_token" {
			http.Error(w, "unexpected", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"error":null,"data":{"token":"session-token"}}`))
	}))
	defer ts.Close()

	token, err := NewTokenIssuer("secret", ts.URL+"/", nil).CreateToken(context.Background())
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if token != "session-token" {
		t.Fatalf("token = %q, want %q", token, "session-token")
	}
}

func TestTokenIssuerMissingConfig(t *testing.T) {
	if _, err := NewTokenIssuer("", "http://x.test", nil).CreateToken(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := NewTokenIssuer("k", " ", nil).CreateToken(context.Background()); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("error = %v, want ErrMissingBaseURL", err)
	}
}

func TestTokenIssuerUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewTokenIssuer("secret", ts.URL, nil).CreateToken(context.Background())
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *upstream.StatusError", err)
	}
	if statusErr.Status != http.StatusTooManyRequests || !strings.Contains(statusErr.Body, "quota") {
		t.Fatalf("status error = %+v", statusErr)
	}
}
