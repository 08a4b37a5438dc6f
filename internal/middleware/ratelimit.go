package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/cache"
	"github.com/fraudguard/fraudguard/internal/metrics"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter cache.Limiter
	Enabled bool
	Metrics metrics.Recorder
}

// RateLimit consumes one unit per request, keyed by the authenticated
// subject or, without one, by client address. Apply after Authenticate.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := auth.SubjectFromContext(r.Context())
			if key == "" {
				key = "ip:" + getClientIP(r)
			}

			result, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result.Limit, result.Remaining, result.ResetAt)

			if !result.Allowed {
				retryAfter := retryAfterSeconds(result.RetryAfter)
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("user_id", auth.SubjectFromContext(r.Context())),
					slog.String("ip", getClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", retryAfter),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Metrics.IncRateLimited()

				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeMessage(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds up and never advertises less than one second.
func retryAfterSeconds(d time.Duration) int64 {
	return max(int64(math.Ceil(d.Seconds())), 1)
}

// getClientIP returns the client address without port. X-Forwarded-For
// and X-Real-IP are honoured only through chi's RealIP middleware, which
// rewrites RemoteAddr before this runs.
func getClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
