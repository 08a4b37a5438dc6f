package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudguard"

// PrometheusRecorder exports metrics to a Prometheus registry.
type PrometheusRecorder struct {
	webhooks         *prometheus.CounterVec
	userSyncs        *prometheus.CounterVec
	ledgerPruned     prometheus.Counter
	authFailures     *prometheus.CounterVec
	jwksRefreshes    *prometheus.CounterVec
	rateLimited      prometheus.Counter
	limiterFallbacks prometheus.Counter
	predictions      *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewPrometheus creates a PrometheusRecorder and registers its collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Identity webhook deliveries by outcome.",
		}, []string{"outcome"}),
		userSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_sync_total",
			Help:      "Identity events applied to the user store by event type.",
		}, []string{"event_type"}),
		ledgerPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_ledger_pruned_total",
			Help:      "Ledger entries removed by the retention job.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected bearer tokens by reason.",
		}, []string{"reason"}),
		jwksRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_refresh_total",
			Help:      "Key set fetches by status.",
		}, []string{"status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		limiterFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_fallback_total",
			Help:      "Rate limit decisions taken in memory because the shared store failed.",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_created_total",
			Help:      "Saved predictions by label.",
		}, []string{"label"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		p.webhooks,
		p.userSyncs,
		p.ledgerPruned,
		p.authFailures,
		p.jwksRefreshes,
		p.rateLimited,
		p.limiterFallbacks,
		p.predictions,
		p.httpDuration,
	)

	return p
}

func (p *PrometheusRecorder) IncWebhook(outcome string) {
	p.webhooks.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUserSync(eventType string) {
	p.userSyncs.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) IncLedgerPruned(count int64) {
	p.ledgerPruned.Add(float64(count))
}

func (p *PrometheusRecorder) IncAuthFailure(reason string) {
	p.authFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncJWKSRefresh(status string) {
	p.jwksRefreshes.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncRateLimited() {
	p.rateLimited.Inc()
}

func (p *PrometheusRecorder) IncRateLimiterFallback() {
	p.limiterFallbacks.Inc()
}

func (p *PrometheusRecorder) IncPredictionCreated(label int) {
	p.predictions.WithLabelValues(strconv.Itoa(label)).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
