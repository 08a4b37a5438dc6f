package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Executor is the subset of *sql.DB the ledger needs. *sql.Tx satisfies it too.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger records processed webhook message ids. The primary key on
// message_id is what guarantees at-most-once application; HasProcessed is
// only a shortcut for the common redelivery case.
type Ledger struct {
	db Executor
}

// NewLedger creates a ledger backed by db.
func NewLedger(db Executor) *Ledger {
	return &Ledger{db: db}
}

// HasProcessed reports whether messageID already has a ledger entry.
func (l *Ledger) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_webhook_messages WHERE message_id = $1)`

	var exists bool
	if err := l.db.QueryRowContext(ctx, query, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query processed webhook: %w", err)
	}
	return exists, nil
}

// MarkProcessed inserts a ledger entry for messageID.
// It returns ErrAlreadyProcessed if another delivery got there first.
func (l *Ledger) MarkProcessed(ctx context.Context, messageID string) error {
	query := `INSERT INTO processed_webhook_messages (message_id, processed_at) VALUES ($1, $2)`

	_, err := l.db.ExecContext(ctx, query, messageID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("insert processed webhook: %w", err)
	}
	return nil
}

// PruneBefore deletes ledger entries processed before cutoff and returns
// the number of rows removed.
func (l *Ledger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM processed_webhook_messages WHERE processed_at < $1`

	result, err := l.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune processed webhooks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune processed webhooks rows affected: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
