package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/fraudguard/fraudguard/internal/metrics"
)

// fallbackLogInterval bounds how often an ongoing outage is logged.
const fallbackLogInterval = 30 * time.Second

// FailoverLimiter asks primary first and lets secondary decide whenever
// primary errors. A Redis outage therefore degrades to per-process limits
// instead of disabling limiting or rejecting all traffic.
type FailoverLimiter struct {
	primary   Limiter
	secondary Limiter
	logger    *slog.Logger
	metrics   metrics.Recorder
	warn      *rate.Sometimes
}

// NewFailoverLimiter creates a FailoverLimiter.
func NewFailoverLimiter(primary, secondary Limiter, logger *slog.Logger, recorder metrics.Recorder) *FailoverLimiter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &FailoverLimiter{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
		metrics:   recorder,
		warn:      &rate.Sometimes{First: 1, Interval: fallbackLogInterval},
	}
}

// Allow implements Limiter.
func (f *FailoverLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	res, err := f.primary.Allow(ctx, key)
	if err == nil {
		return res, nil
	}

	f.metrics.IncRateLimiterFallback()
	f.warn.Do(func() {
		f.logger.Warn("rate limiter backend unavailable, using in-memory limiter",
			slog.String("error", err.Error()),
		)
	})
	return f.secondary.Allow(ctx, key)
}
