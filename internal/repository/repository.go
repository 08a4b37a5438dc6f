// Package repository provides the PostgreSQL data access layer.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Repository owns the database handles. Users and predictions go through
// the pgx pool; the webhook ledger and migrations use the database/sql handle.
type Repository struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// New creates a Repository with a pgx connection pool and a lib/pq handle.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Ledger and migrations use database/sql
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open sql handle: %w", err)
	}
	db.SetMaxOpenConns(5)

	if err := db.PingContext(ctx); err != nil {
		pool.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sql handle: %w", err)
	}

	return &Repository{pool: pool, db: db}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes both database handles.
func (r *Repository) Close() {
	r.pool.Close()
	_ = r.db.Close()
}

// Pool returns the underlying connection pool.
// Use sparingly - prefer adding methods to Repository.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// DB returns the database/sql handle used by the webhook ledger and migrations.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
