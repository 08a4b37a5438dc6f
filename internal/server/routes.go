package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fraudguard/fraudguard/internal/cache"
	"github.com/fraudguard/fraudguard/internal/handler"
	"github.com/fraudguard/fraudguard/internal/handler/dto"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/middleware"
)

// Deps are the collaborators the route table is built from.
type Deps struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// MetricsHandler serves /metrics; nil leaves the route unmounted.
	MetricsHandler http.Handler

	Verifier middleware.TokenVerifier
	Users    middleware.UserLookup
	Limiter  cache.Limiter

	Health      *handler.HealthHandler
	Webhooks    *handler.WebhookHandler
	Auth        *handler.AuthHandler
	Predictions *handler.PredictionHandler

	RateLimitEnabled bool
	IsDevelopment    bool
	AllowedOrigins   []string
	MaxBodySize      int64
}

// Routes builds the application router.
//
// Protected routes pass the guard stages in order: bearer header, token,
// local user, rate limit, then body validation where a route has a body.
func Routes(d Deps) http.Handler {
	h := handler.New()
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer(d.Logger, d.IsDevelopment))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: d.IsDevelopment}))

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = d.AllowedOrigins
	r.Use(middleware.CORS(cors))

	r.Get("/", h.Root)
	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	r.Get("/health/db", d.Health.Database)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	// The webhook handler applies its own size limit while reading raw bytes.
	r.Post("/api/webhooks/clerk", d.Webhooks.Receive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(d.MaxBodySize))

		r.Post("/api/auth/verify", d.Auth.Verify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(middleware.AuthConfig{
				Logger:   d.Logger,
				Verifier: d.Verifier,
				Users:    d.Users,
			}))
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				Logger:  d.Logger,
				Limiter: d.Limiter,
				Enabled: d.RateLimitEnabled,
				Metrics: d.Metrics,
			}))

			r.Get("/api/protected", h.Protected)

			r.Route("/api/predictions", func(r chi.Router) {
				r.With(middleware.ValidateJSON[dto.CreatePredictionRequest]()).Post("/", d.Predictions.Create)
				r.Get("/history", d.Predictions.History)
				r.Get("/stats", d.Predictions.Stats)
				r.Get("/analytics", d.Predictions.Analytics)
			})
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
