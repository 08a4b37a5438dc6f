// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Webhook ingestion metrics
	IncWebhook(outcome string)
	IncUserSync(eventType string)
	IncLedgerPruned(count int64)

	// Authentication metrics
	IncAuthFailure(reason string)
	IncJWKSRefresh(status string) // status: "success" or "failed"

	// Rate limiting metrics
	IncRateLimited()
	IncRateLimiterFallback()

	// Prediction metrics
	IncPredictionCreated(label int)

	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
