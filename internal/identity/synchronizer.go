package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/model"
)

// UserStore is the write side of the local user table.
type UserStore interface {
	UpsertUser(ctx context.Context, externalID string, profile model.UserProfile) (*model.User, error)
	DeleteUser(ctx context.Context, externalID string) error
}

// Synchronizer turns identity events into user mutations.
type Synchronizer struct {
	store      UserStore
	strategies []IDStrategy
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewSynchronizer creates a Synchronizer using DefaultIDStrategies.
func NewSynchronizer(store UserStore, logger *slog.Logger, recorder metrics.Recorder) *Synchronizer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Synchronizer{
		store:      store,
		strategies: DefaultIDStrategies,
		logger:     logger,
		metrics:    recorder,
	}
}

// Apply performs at most one user write for e and returns the subject id.
// It fails with ErrMissingSubjectID before touching the store.
func (s *Synchronizer) Apply(ctx context.Context, e *Event) (string, error) {
	subjectID, err := ExtractSubjectID(e, s.strategies)
	if err != nil {
		return "", err
	}

	switch e.Type {
	case EventUserCreated, EventUserUpdated:
		if _, err := s.store.UpsertUser(ctx, subjectID, ExtractProfile(e)); err != nil {
			return subjectID, fmt.Errorf("upsert user %s: %w", subjectID, err)
		}
		s.logger.Info("user synchronized",
			slog.String("event_type", e.Type),
			slog.String("user_id", subjectID),
		)
	case EventUserDeleted:
		if err := s.store.DeleteUser(ctx, subjectID); err != nil {
			return subjectID, fmt.Errorf("delete user %s: %w", subjectID, err)
		}
		s.logger.Info("user deleted", slog.String("user_id", subjectID))
	default:
		s.logger.Info("ignoring unhandled event type",
			slog.String("event_type", e.Type),
			slog.String("user_id", subjectID),
		)
		return subjectID, nil
	}

	s.metrics.IncUserSync(e.Type)
	return subjectID, nil
}
