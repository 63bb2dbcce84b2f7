package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	a := NewTokenAuthenticator([]string{"alpha", "  ", "beta"})
	if !a.Enabled() {
		t.Fatal("authenticator with tokens must be enabled")
	}
	cases := []struct {
		header string
		err    error
	}{
		{"", ErrMissingToken},
		{"Bearer ", ErrMissingToken},
		{"Basic alpha", ErrInvalidToken},
		{"Bearer gamma", ErrInvalidToken},
		{"alpha", ErrInvalidToken},
		{"Bearer alpha", nil},
		{"bearer beta", nil},
	}
	for _, tc := range cases {
		subject, err := a.Authenticate(tc.header)
		if !errors.Is(err, tc.err) {
			t.Fatalf("header %q: expected %v, got %v", tc.header, tc.err, err)
		}
		if tc.err == nil && (subject == nil || len(subject.Fingerprint) != 8) {
			t.Fatalf("header %q: unexpected subject %+v", tc.header, subject)
		}
	}
	if NewTokenAuthenticator(nil).Enabled() {
		t.Fatal("authenticator without tokens must be disabled")
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var audit bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&audit, nil))
	a := NewTokenAuthenticator([]string{"secret"})

	var seen *Subject
	handler := a.Middleware(MiddlewareConfig{
		Public: map[string]bool{"/healthz": true},
		Logger: logger,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("missing token must be rejected, got %d", rec.Code)
	}
	if !strings.Contains(audit.String(), "access_denied") {
		t.Fatalf("denial must be audited: %s", audit.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("public path must bypass auth, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted || seen == nil {
		t.Fatalf("valid token must pass, got %d", rec.Code)
	}
	if !strings.Contains(audit.String(), `"status":202`) {
		t.Fatalf("request must be audited with its status: %s", audit.String())
	}
}

func TestMiddlewareWithoutTokens(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	empty := NewTokenAuthenticator(nil)

	closed := empty.Middleware(MiddlewareConfig{Logger: logger})(next)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	closed.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no configured tokens must fail closed, got %d", rec.Code)
	}

	open := empty.Middleware(MiddlewareConfig{Logger: logger, AllowAnonymous: true})(next)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("explicit anonymous access must pass, got %d", rec.Code)
	}

	var nilAuth *TokenAuthenticator
	if _, err := nilAuth.Authenticate("Bearer anything"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("nil authenticator must reject tokens, got %v", err)
	}
}

func TestFingerprintFromContext(t *testing.T) {
	t.Parallel()

	if got := Fingerprint(context.Background()); got != "anonymous" {
		t.Fatalf("unauthenticated context should be anonymous, got %q", got)
	}
	subject, err := NewTokenAuthenticator([]string{"secret"}).Authenticate("Bearer secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	ctx := WithSubject(context.Background(), subject)
	if got := Fingerprint(ctx); got != subject.Fingerprint || len(got) != 8 {
		t.Fatalf("unexpected fingerprint %q", got)
	}
	if WithSubject(ctx, nil) != ctx {
		t.Fatal("nil subject must leave the context untouched")
	}
}
