package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fraudguard/fraudguard/internal/model"
)

// ErrUserNotFound is returned when no local user matches the external id.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `clerk_id, email, first_name, last_name, raw, created_at, updated_at`

// GetUserByExternalID returns the user keyed by the identity provider's subject id.
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE clerk_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates the user. Nil profile fields leave the
// stored values untouched, so replaying the same event is a no-op.
func (r *Repository) UpsertUser(ctx context.Context, externalID string, profile model.UserProfile) (*model.User, error) {
	query := `
		INSERT INTO users (clerk_id, email, first_name, last_name, raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (clerk_id) DO UPDATE SET
			email      = COALESCE(EXCLUDED.email, users.email),
			first_name = COALESCE(EXCLUDED.first_name, users.first_name),
			last_name  = COALESCE(EXCLUDED.last_name, users.last_name),
			raw        = COALESCE(EXCLUDED.raw, users.raw),
			updated_at = now()
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query,
		externalID,
		profile.Email,
		profile.FirstName,
		profile.LastName,
		rawOrNil(profile.Raw),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// CreateUserIfAbsent inserts the user only when no row exists yet and
// returns the stored row either way. It never overwrites synced data.
func (r *Repository) CreateUserIfAbsent(ctx context.Context, externalID string, profile model.UserProfile) (*model.User, error) {
	query := `
		INSERT INTO users (clerk_id, email, first_name, last_name, raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (clerk_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query,
		externalID,
		profile.Email,
		profile.FirstName,
		profile.LastName,
		rawOrNil(profile.Raw),
	); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetUserByExternalID(ctx, externalID)
}

// DeleteUser removes the user. Deleting an absent user is not an error.
func (r *Repository) DeleteUser(ctx context.Context, externalID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, externalID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var raw []byte
	if err := row.Scan(
		&user.ExternalID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&raw,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Raw = raw
	return &user, nil
}

// rawOrNil keeps an empty document from being stored as invalid JSONB.
func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
