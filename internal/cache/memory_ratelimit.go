package cache

import (
	"context"
	"sync"
	"time"
)

// memoryWindow is one key's counter for the current window.
type memoryWindow struct {
	count int64
	start time.Time
}

// MemoryLimiter is a per-process fixed-window limiter with the same
// semantics as the Redis script: a key's window opens on its first hit and
// holds at most points hits until window has elapsed.
type MemoryLimiter struct {
	points int64
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*memoryWindow

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryLimiter creates a MemoryLimiter. When cleanupInterval is
// positive a background loop drops keys whose window has ended.
func NewMemoryLimiter(points int, window, cleanupInterval time.Duration) *MemoryLimiter {
	return newMemoryLimiter(points, window, cleanupInterval, time.Now)
}

// NewMemoryLimiterWithClock is NewMemoryLimiter with an injected clock and
// no cleanup loop, for deterministic tests.
func NewMemoryLimiterWithClock(points int, window time.Duration, now func() time.Time) *MemoryLimiter {
	return newMemoryLimiter(points, window, 0, now)
}

func newMemoryLimiter(points int, window, cleanupInterval time.Duration, now func() time.Time) *MemoryLimiter {
	l := &MemoryLimiter{
		points:  int64(points),
		window:  window,
		now:     now,
		windows: make(map[string]*memoryWindow),
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop(cleanupInterval)
	}
	return l
}

// Allow consumes one hit for key. It never fails.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (*RateLimitResult, error) {
	now := l.now()

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &memoryWindow{start: now}
		l.windows[key] = w
	}
	w.count++
	count := w.count
	resetAt := w.start.Add(l.window)
	l.mu.Unlock()

	result := &RateLimitResult{
		Allowed:   count <= l.points,
		Limit:     l.points,
		Remaining: max(l.points-count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(now)
	}
	return result, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops keys whose window has ended. The next hit for such a key
// opens a fresh window anyway.
func (l *MemoryLimiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.window)) {
			delete(l.windows, key)
		}
	}
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}

// Stop halts the cleanup loop.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
