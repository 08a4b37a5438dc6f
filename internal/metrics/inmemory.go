package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Webhooks           map[string]uint64
	UserSyncs          map[string]uint64
	LedgerPruned       int64
	AuthFailures       map[string]uint64
	JWKSRefreshes      map[string]uint64
	RateLimited        uint64
	RateLimitFallbacks uint64
	PredictionsCreated uint64
	HTTPRequests       uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		snap: Snapshot{
			Webhooks:      make(map[string]uint64),
			UserSyncs:     make(map[string]uint64),
			AuthFailures:  make(map[string]uint64),
			JWKSRefreshes: make(map[string]uint64),
		},
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.snap
	s.Webhooks = maps.Clone(m.snap.Webhooks)
	s.UserSyncs = maps.Clone(m.snap.UserSyncs)
	s.AuthFailures = maps.Clone(m.snap.AuthFailures)
	s.JWKSRefreshes = maps.Clone(m.snap.JWKSRefreshes)
	return s
}

func (m *InMemoryRecorder) with(fn func(s *Snapshot)) {
	m.mu.Lock()
	fn(&m.snap)
	m.mu.Unlock()
}

// IncWebhook counts a webhook delivery by outcome.
func (m *InMemoryRecorder) IncWebhook(outcome string) {
	m.with(func(s *Snapshot) { s.Webhooks[outcome]++ })
}

// IncUserSync counts an applied identity event.
func (m *InMemoryRecorder) IncUserSync(eventType string) {
	m.with(func(s *Snapshot) { s.UserSyncs[eventType]++ })
}

// IncLedgerPruned adds pruned ledger rows.
func (m *InMemoryRecorder) IncLedgerPruned(count int64) {
	m.with(func(s *Snapshot) { s.LedgerPruned += count })
}

// IncAuthFailure counts a rejected token by reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.with(func(s *Snapshot) { s.AuthFailures[reason]++ })
}

// IncJWKSRefresh counts a key set fetch.
func (m *InMemoryRecorder) IncJWKSRefresh(status string) {
	m.with(func(s *Snapshot) { s.JWKSRefreshes[status]++ })
}

// IncRateLimited counts a 429.
func (m *InMemoryRecorder) IncRateLimited() {
	m.with(func(s *Snapshot) { s.RateLimited++ })
}

// IncRateLimiterFallback counts a decision taken by the secondary limiter.
func (m *InMemoryRecorder) IncRateLimiterFallback() {
	m.with(func(s *Snapshot) { s.RateLimitFallbacks++ })
}

// IncPredictionCreated counts a saved prediction.
func (m *InMemoryRecorder) IncPredictionCreated(label int) {
	m.with(func(s *Snapshot) { s.PredictionsCreated++ })
}

// ObserveHTTPRequest counts a served request.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.with(func(s *Snapshot) { s.HTTPRequests++ })
}
