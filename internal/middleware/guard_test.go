package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/cache"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVerifier accepts tokens of the form "valid:<subject>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	subject, ok := strings.CutPrefix(token, "valid:")
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}, nil
}

type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (f *fakeUsers) GetUserByExternalID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

type decodedError struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	ClerkID string       `json:"clerkId"`
	Errors  []FieldError `json:"errors"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) decodedError {
	t.Helper()
	var body decodedError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.MustIdentityFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": id.SubjectID})
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"double space before token", "Bearer  tok", "", ErrEmptyToken},
		{"trailing segment", "Bearer tok extra", "", ErrNoBearer},
		{"trailing space", "Bearer tok ", "", ErrNoBearer},
		{"tab inside token", "Bearer to\tk", "", ErrNoBearer},
		{"scheme only", "Bearer", "", ErrNoBearer},
		{"missing header", "", "", ErrNoBearer},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", ErrNoBearer},
		{"lowercase scheme", "bearer tok", "", ErrNoBearer},
		{"empty token", "Bearer ", "", ErrEmptyToken},
		{"whitespace token", "Bearer    ", "", ErrEmptyToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(req)
			if err != tt.wantErr {
				t.Fatalf("BearerToken() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	users := &fakeUsers{users: map[string]*model.User{
		"user_1": {ExternalID: "user_1"},
	}}

	tests := []struct {
		name        string
		header      string
		users       *fakeUsers
		wantStatus  int
		wantMessage string
		wantClerkID string
	}{
		{"no header", "", users, http.StatusUnauthorized, "Unauthorized", ""},
		{"empty token", "Bearer ", users, http.StatusUnauthorized, "No token provided", ""},
		{"empty second segment", "Bearer  valid:user_1", users, http.StatusUnauthorized, "No token provided", ""},
		{"extra segment", "Bearer valid:user_1 extra", users, http.StatusUnauthorized, "Unauthorized", ""},
		{"invalid token", "Bearer forged", users, http.StatusUnauthorized, "Invalid or expired token", ""},
		{"unknown user", "Bearer valid:user_ghost", users, http.StatusNotFound, "User not found in database", "user_ghost"},
		{"database error", "Bearer valid:user_1", &fakeUsers{err: context.DeadlineExceeded}, http.StatusInternalServerError, "Internal server error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Authenticate(AuthConfig{
				Logger:   discardLogger(),
				Verifier: fakeVerifier{},
				Users:    tt.users,
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Fatal("handler ran despite failed guard")
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeError(t, rec)
			if body.Success {
				t.Error("success = true, want false")
			}
			if body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if body.ClerkID != tt.wantClerkID {
				t.Errorf("clerkId = %q, want %q", body.ClerkID, tt.wantClerkID)
			}
		})
	}
}

func TestAuthenticate_AttachesIdentity(t *testing.T) {
	users := &fakeUsers{users: map[string]*model.User{"user_1": {ExternalID: "user_1"}}}
	handler := Authenticate(AuthConfig{
		Logger:   discardLogger(),
		Verifier: fakeVerifier{},
		Users:    users,
	})(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.Header.Set("Authorization", "Bearer valid:user_1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got["userId"] != "user_1" {
		t.Errorf("userId = %q, want user_1", got["userId"])
	}
}

// A caller spreads 61 requests over half a window; the 61st is refused
// until the window that opened with the first request ends.
func TestGuard_RateLimitsPerSubject(t *testing.T) {
	now := time.Unix(1736600000, 0)
	limiter := cache.NewMemoryLimiterWithClock(60, time.Minute, func() time.Time { return now })
	recorder := metrics.NewInMemory()

	users := &fakeUsers{users: map[string]*model.User{
		"user_a": {ExternalID: "user_a"},
		"user_b": {ExternalID: "user_b"},
	}}
	authn := Authenticate(AuthConfig{Logger: discardLogger(), Verifier: fakeVerifier{}, Users: users})
	limit := RateLimit(RateLimitConfig{Logger: discardLogger(), Limiter: limiter, Enabled: true, Metrics: recorder})
	handler := authn(limit(identityEcho()))

	do := func(subject string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/predictions/history", nil)
		req.Header.Set("Authorization", "Bearer valid:"+subject)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 1; i <= 60; i++ {
		if rec := do("user_a"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		now = now.Add(500 * time.Millisecond)
	}

	rec := do("user_a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("61st request: status = %d, want 429", rec.Code)
	}
	if body := decodeError(t, rec); body.Message != "Too many requests" {
		t.Errorf("message = %q, want Too many requests", body.Message)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}

	if rec := do("user_b"); rec.Code != http.StatusOK {
		t.Errorf("other subject: status = %d, want 200", rec.Code)
	}
	if got := recorder.Snapshot().RateLimited; got != 1 {
		t.Errorf("RateLimited = %d, want 1", got)
	}

	now = now.Add(30 * time.Second)
	if rec := do("user_a"); rec.Code != http.StatusOK {
		t.Errorf("next window: status = %d, want 200", rec.Code)
	}
}

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (*cache.RateLimitResult, error) {
	return nil, context.DeadlineExceeded
}

func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Logger:  discardLogger(),
		Limiter: erroringLimiter{},
		Enabled: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_KeysByIPWithoutIdentity(t *testing.T) {
	now := time.Unix(1736600000, 0)
	limiter := cache.NewMemoryLimiterWithClock(1, time.Minute, func() time.Time { return now })
	handler := RateLimit(RateLimitConfig{
		Logger:  discardLogger(),
		Limiter: limiter,
		Enabled: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do("10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("first request: status = %d", got)
	}
	if got := do("10.0.0.1:5678"); got != http.StatusTooManyRequests {
		t.Errorf("same ip, new port: status = %d, want 429", got)
	}
	if got := do("10.0.0.2:1234"); got != http.StatusOK {
		t.Errorf("other ip: status = %d, want 200", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{59 * time.Second, 59},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
