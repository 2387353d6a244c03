package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/auth"
	"github.com/hongminglow/nova-be/internal/envelope"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/ratelimit"
	"github.com/hongminglow/nova-be/internal/storage"
)

type stubProvider struct {
	calls int
	id    auth.Identity
	err   error
}

func (s *stubProvider) Verify(context.Context, string) (auth.Identity, error) {
	s.calls++
	return s.id, s.err
}

type stubUsers map[string]models.User

func (s stubUsers) FindByID(_ context.Context, id string) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) respond.Envelope {
	t.Helper()
	var env respond.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer a.b.c":     true,
		"bearer a.b.c":     true,
		"Bearer a.b":       false,
		"Bearer a.b.c.d":   false,
		"Bearer a..c":      false,
		"Basic dXNlcjpwdw": false,
		"":                 false,
	}
	for header, valid := range cases {
		_, err := BearerToken(header)
		if valid && err != nil {
			t.Fatalf("%q: unexpected error %v", header, err)
		}
		if !valid && !errors.Is(err, apperr.ErrMalformedToken) {
			t.Fatalf("%q: expected MalformedToken, got %v", header, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	users := stubUsers{
		"active":   {ID: "active", UserType: models.UserTypeKid, IsActive: true},
		"disabled": {ID: "disabled", UserType: models.UserTypeKid, IsActive: false},
	}
	cases := []struct {
		name     string
		header   string
		provider *stubProvider
		status   int
		kind     apperr.Kind
		verified bool
	}{
		{"malformed skips verification", "Bearer onlyone", &stubProvider{}, http.StatusUnauthorized, apperr.KindMalformedToken, false},
		{"provider rejects", "Bearer a.b.c", &stubProvider{err: apperr.ErrInvalidToken}, http.StatusUnauthorized, apperr.KindInvalidToken, true},
		{"unknown user", "Bearer a.b.c", &stubProvider{id: auth.Identity{UserID: "ghost"}}, http.StatusUnauthorized, apperr.KindInvalidToken, true},
		{"inactive", "Bearer a.b.c", &stubProvider{id: auth.Identity{UserID: "disabled"}}, http.StatusForbidden, apperr.KindInactiveAccount, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Authenticate(tc.provider, users)(http.HandlerFunc(okHandler))
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			req.Header.Set("Authorization", tc.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if env := decodeEnvelope(t, rec); env.Error != string(tc.kind) {
				t.Fatalf("expected kind %s, got %s", tc.kind, env.Error)
			}
			if (tc.provider.calls > 0) != tc.verified {
				t.Fatalf("unexpected provider calls: %d", tc.provider.calls)
			}
		})
	}
}

func TestAuthenticateStoresUser(t *testing.T) {
	users := stubUsers{"active": {ID: "active", UserType: models.UserTypeParent, IsActive: true}}
	provider := &stubProvider{id: auth.Identity{UserID: "active"}}

	var seen models.User
	h := Authenticate(provider, users)(RequireUserType(models.UserTypeParent)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer a.b.c")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || seen.ID != "active" {
		t.Fatalf("expected authenticated request, got %d %+v", rec.Code, seen)
	}

	kidOnly := Authenticate(provider, users)(RequireUserType(models.UserTypeKid)(http.HandlerFunc(okHandler)))
	rec = httptest.NewRecorder()
	kidOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong user type, got %d", rec.Code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter().WithClock(func() time.Time { return now })
	rule := ratelimit.Rule{Name: "auth", Max: 2, Window: 15 * time.Minute}
	h := RateLimit(limiter, rule, ByIP, nil)(http.HandlerFunc(okHandler))

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := call(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := call()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("RateLimit-Limit") != "2" || rec.Header().Get("RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate limit headers: %v", rec.Header())
	}
	if rec.Header().Get("Retry-After") != "900" {
		t.Fatalf("expected Retry-After 900, got %q", rec.Header().Get("Retry-After"))
	}
	if env := decodeEnvelope(t, rec); env.Error != string(apperr.KindRateLimited) {
		t.Fatalf("expected RateLimited, got %s", env.Error)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, ratelimit.Rule, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, ratelimit.Rule{Name: "general", Max: 1, Window: time.Minute}, ByIP, nil)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request through, got %d", rec.Code)
	}
}

func TestDecryptBody(t *testing.T) {
	c, err := envelope.New("middleware-test-secret-middleware-test")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	sealed, err := c.Encrypt([]byte(`{"email":"kid@example.com","password":"hunter22"}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var got string
	h := DecryptBody(c, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	send := func(body string) *httptest.ResponseRecorder {
		got = ""
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))
		return rec
	}

	rec := send(`{"encrypted":"` + sealed + `"}`)
	if rec.Code != http.StatusOK || got != `{"email":"kid@example.com","password":"hunter22"}` {
		t.Fatalf("expected decrypted body, got %d %q", rec.Code, got)
	}

	rec = send(`{"email":"plain@example.com"}`)
	if rec.Code != http.StatusOK || got != `{"email":"plain@example.com"}` {
		t.Fatalf("expected passthrough, got %d %q", rec.Code, got)
	}

	rec = send(`{"encrypted":"garbage","email":"plain@example.com"}`)
	if rec.Code != http.StatusOK || got != `{"email":"plain@example.com"}` {
		t.Fatalf("expected encrypted field dropped, got %d %q", rec.Code, got)
	}

	rec = send(`{"encrypted":"garbage"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != string(apperr.KindDecryptionFailed) {
		t.Fatalf("expected DecryptionFailed, got %s", env.Error)
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	var seen string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated request id, got %q / %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Fatalf("expected caller request id, got %q", seen)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
