package middleware

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
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/pinreport/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockUsers struct {
	users map[uuid.UUID]*domain.User
	err   error
	calls int
}

func (m *mockUsers) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

// =============================================================================
// Identity
// =============================================================================

func TestResolve_KnownUserIsPlacedInContext(t *testing.T) {
	id := uuid.New()
	users := &mockUsers{users: map[uuid.UUID]*domain.User{id: {ID: id, Email: "ana@example.com"}}}
	mw := NewIdentityMiddleware(users, newTestLogger())

	var got *domain.User
	handler := mw.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ContextIdentity{}.CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/reports", nil)
	req.Header.Set(UserHeader, id.String())
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID != id {
		t.Fatalf("expected user %s in context, got %+v", id, got)
	}
}

func TestResolve_AnonymousRequests(t *testing.T) {
	tests := []struct {
		name   string
		header string
		calls  int
	}{
		{"no header", "", 0},
		{"malformed header", "not-a-uuid", 0},
		{"unknown user", uuid.NewString(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUsers{}
			mw := NewIdentityMiddleware(users, newTestLogger())

			called := false
			handler := mw.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if GetUser(r.Context()) != nil {
					t.Error("expected no user in context")
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(UserHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("next handler should be called")
			}
			if users.calls != tt.calls {
				t.Errorf("lookups = %d, want %d", users.calls, tt.calls)
			}
		})
	}
}

func TestResolve_LookupErrorReturns500(t *testing.T) {
	mw := NewIdentityMiddleware(&mockUsers{err: errors.New("db down")}, newTestLogger())
	handler := mw.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRequireUser_NoUserReturns401JSON(t *testing.T) {
	mw := NewIdentityMiddleware(&mockUsers{}, newTestLogger())
	handler := mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reports", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), domain.EUNAUTHORIZED) {
		t.Errorf("body should carry the error code, got %s", rec.Body.String())
	}
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("a"), mark("b"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,handler" {
		t.Errorf("order = %v", order)
	}
}

// =============================================================================
// Logging
// =============================================================================

func TestRequestLogging_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/reports?token=abc123&page=2", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{"POST", "/reports", "status=201", "192.168.1.1", "token=[REDACTED]", "page=2", "request_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %q, got: %s", want, out)
		}
	}
	if strings.Contains(out, "abc123") {
		t.Errorf("log leaked a token: %s", out)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}
}

func TestRequestLogging_ServerErrorsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reports", nil))

	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected WARN level, got: %s", buf.String())
	}
}

func TestRequestLogging_SkipsNoisyPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/files/a/b.jpg"} {
		var buf bytes.Buffer
		mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

		if buf.Len() != 0 {
			t.Errorf("%s should not be logged, got: %s", path, buf.String())
		}
	}
}

// =============================================================================
// Metrics auth
// =============================================================================

func TestMetricsAuth(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"valid credentials", "prom", "secret", true, http.StatusOK},
		{"wrong password", "prom", "nope", true, http.StatusUnauthorized},
		{"wrong username", "admin", "secret", true, http.StatusUnauthorized},
		{"no credentials", "", "", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewMetricsAuthMiddleware("prom", "secret")
			handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestMetricsAuth_DisabledWithoutCredentials(t *testing.T) {
	handler := NewMetricsAuthMiddleware("", "").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// =============================================================================
// Rate limiting
// =============================================================================

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("other") {
		t.Error("keys are independent")
	}
	if got := rl.RetryAfter("k"); got != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", got)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("k") {
		t.Error("request after the window should be allowed")
	}

	now = now.Add(2 * time.Minute)
	rl.Sweep()
	if len(rl.entries) != 0 {
		t.Errorf("sweep left %d entries", len(rl.entries))
	}
}

func TestRateLimitMiddleware_KeysBySignedInUser(t *testing.T) {
	mw := NewRateLimitMiddleware(NewRateLimiter(1, time.Hour), newTestLogger())
	handler := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(user *domain.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reports", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		if user != nil {
			req = req.WithContext(WithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	alice := &domain.User{ID: uuid.New()}
	bob := &domain.User{ID: uuid.New()}

	if rec := send(alice); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := send(bob); rec.Code != http.StatusOK {
		t.Errorf("another user behind the same IP should not be limited, got %d", rec.Code)
	}
	rec := send(alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 203.0.113.9 "}, "10.0.0.2:80", "203.0.113.9"},
		{"remote addr", nil, "198.51.100.7:5555", "198.51.100.7"},
		{"remote addr without port", nil, "198.51.100.7", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Security headers
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		isSecure bool
		wantHSTS bool
	}{
		{"production", true, true},
		{"development", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSecurityHeadersMiddleware(tt.isSecure).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			h := rec.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing nosniff")
			}
			if h.Get("X-Frame-Options") != "DENY" {
				t.Error("missing X-Frame-Options")
			}
			if !strings.Contains(h.Get("Permissions-Policy"), "camera=(self)") {
				t.Errorf("camera should be allowed for self, got %q", h.Get("Permissions-Policy"))
			}
			if got := h.Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}
