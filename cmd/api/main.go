// Package main is the entrypoint for the fraudguard API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/cache"
	"github.com/fraudguard/fraudguard/internal/config"
	"github.com/fraudguard/fraudguard/internal/handler"
	"github.com/fraudguard/fraudguard/internal/identity"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/repository"
	"github.com/fraudguard/fraudguard/internal/server"
	"github.com/fraudguard/fraudguard/internal/service"
	"github.com/fraudguard/fraudguard/internal/webhook"
)

func main() {
	ctx := context.Background()

	// Missing required settings stop the process before it serves anything.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.MigrateOnStart {
		if err := repository.Migrate(repo.DB()); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(registry)

	memoryLimiter := cache.NewMemoryLimiter(cfg.RateLimitPoints, cfg.RateLimitWindow, cfg.RateLimitWindow)
	var limiter cache.Limiter = memoryLimiter

	var cacheClient *cache.Cache
	if cfg.HasRedis() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL, cfg.RedisTimeout)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			repo.Close()
			os.Exit(1)
		}
		logger.Info("connected to Redis")
		limiter = cache.NewFailoverLimiter(
			cache.NewRedisLimiter(cacheClient, cfg.RateLimitPoints, cfg.RateLimitWindow, cfg.RedisTimeout),
			memoryLimiter,
			logger,
			recorder,
		)
	} else {
		logger.Info("REDIS_URL not set, rate limiting per process")
	}

	jwks := auth.NewJWKSClient(cfg.ClerkJWKSURL, auth.JWKSOptions{
		FetchTimeout:       cfg.JWKSFetchTimeout,
		CacheTTL:           cfg.JWKSCacheTTL,
		MinRefreshInterval: cfg.JWKSMinRefreshInterval,
	}, logger, recorder)
	verifier := auth.NewTokenVerifier(jwks, cfg.ClerkJWTIssuer, cfg.AuthClockSkew, logger, recorder)

	ledger := webhook.NewLedger(repo.DB())
	processor := identity.NewProcessor(
		ledger,
		identity.NewSynchronizer(repo, logger, recorder),
		logger,
	)
	retention := webhook.NewRetentionJob(ledger, logger, recorder, cfg.WebhookLedgerRetention, cfg.WebhookLedgerPruneInterval)

	var healthCache handler.HealthChecker
	if cacheClient != nil {
		healthCache = cacheClient
	}

	router := server.Routes(server.Deps{
		Logger:         logger,
		Metrics:        recorder,
		MetricsHandler: metrics.Handler(registry),
		Verifier:       verifier,
		Users:          repo,
		Limiter:        limiter,
		Health:         handler.NewHealthHandler(repo, healthCache, logger),
		Webhooks: handler.NewWebhookHandler(
			webhook.NewVerifier(cfg.ClerkWebhookSecret, webhook.DefaultReplayWindow),
			processor,
			logger,
			recorder,
			cfg.MaxRequestBodySize,
		),
		Auth:             handler.NewAuthHandler(verifier, repo, logger),
		Predictions:      handler.NewPredictionHandler(service.NewPredictionService(repo, recorder), logger),
		RateLimitEnabled: cfg.RateLimitEnabled,
		IsDevelopment:    cfg.IsDevelopment(),
		AllowedOrigins:   cfg.GetCORSAllowedOrigins(),
		MaxBodySize:      cfg.MaxRequestBodySize,
	})

	srv := server.New(
		router,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Stopped in reverse: retention job, limiter sweeper, Redis, database.
	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}
	srv.OnShutdown("rate-limiter", func(context.Context) error {
		memoryLimiter.Stop()
		return nil
	})
	srv.OnShutdown("ledger-retention", retention.Stop)

	retention.Start()

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"jwks_url", redactURL(cfg.ClerkJWKSURL),
		"rate_limit", cfg.RateLimitPoints,
		"rate_limit_window", cfg.RateLimitWindow.String(),
		"ledger_retention", cfg.WebhookLedgerRetention.String(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "fraudguard")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL drops passwords and query strings (which may carry tokens).
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			username = "redacted"
		}
		parsed.User = url.User(username)
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery = "redacted"
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
