package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// rateLimitPrefix is the Redis key prefix for rate limit windows.
const rateLimitPrefix = "ratelimit:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter consumes one unit of quota for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*RateLimitResult, error)
}

// fixedWindowScript counts hits in the current window. The window starts
// at the first hit and expires after ARGV[1] milliseconds.
var fixedWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end

	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end

	return {current, ttl}
`)

// RedisLimiter is a fixed-window limiter shared across instances.
type RedisLimiter struct {
	client  *redis.Client
	points  int64
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewRedisLimiter allows points hits per window for each key.
// Each Redis round trip is bounded by timeout when it is positive.
func NewRedisLimiter(c *Cache, points int, window, timeout time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:  c.Client(),
		points:  int64(points),
		window:  window,
		timeout: timeout,
		now:     time.Now,
	}
}

// Allow consumes one hit. Redis failures are returned to the caller.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	res, err := fixedWindowScript.Run(ctx, l.client,
		[]string{rateLimitPrefix + hashKey(key)},
		l.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	result := &RateLimitResult{
		Allowed:   count <= l.points,
		Limit:     l.points,
		Remaining: max(l.points-count, 0),
		ResetAt:   l.now().Add(ttl),
	}
	if !result.Allowed {
		result.RetryAfter = ttl
	}
	return result, nil
}

// hashKey hashes a subject id or client address so raw identifiers are not
// stored in Redis.
func hashKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
