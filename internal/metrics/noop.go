package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncWebhook(outcome string)      {}
func (n *NoopRecorder) IncUserSync(eventType string)   {}
func (n *NoopRecorder) IncLedgerPruned(count int64)    {}
func (n *NoopRecorder) IncAuthFailure(reason string)   {}
func (n *NoopRecorder) IncJWKSRefresh(status string)   {}
func (n *NoopRecorder) IncRateLimited()                {}
func (n *NoopRecorder) IncRateLimiterFallback()        {}
func (n *NoopRecorder) IncPredictionCreated(label int) {}

func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
}
