// Package testutil provides shared helpers for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fraudguard/fraudguard/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewRedisClient connects to REDIS_URL, flushes it and closes it on cleanup.
// The test is skipped when REDIS_URL is unset.
func NewRedisClient(t testing.TB) *redis.Client {
	t.Helper()
	url := RequireEnv(t, "REDIS_URL")

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// ============================================================================
// Test Data Factories
// ============================================================================

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// Features returns a valid feature vector.
func Features() []float64 {
	f := make([]float64, model.FeatureCount)
	for i := range f {
		f[i] = float64(i) / 10
	}
	return f
}

// NewTestUser creates a user with sensible defaults.
func NewTestUser(t testing.TB, externalID string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ExternalID: externalID,
		Email:      Ptr(externalID + "@example.com"),
		FirstName:  Ptr("Test"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewTestPrediction creates a prediction for userID with the given label.
func NewTestPrediction(t testing.TB, userID string, label int) *model.Prediction {
	t.Helper()
	probability := 0.12
	if label == model.PredictionFraud {
		probability = 0.93
	}
	return &model.Prediction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Features:    Features(),
		Prediction:  label,
		Probability: probability,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}
