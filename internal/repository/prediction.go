package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fraudguard/fraudguard/internal/model"
)

// ErrPredictionExists is returned when a prediction id is reused.
var ErrPredictionExists = errors.New("prediction already exists")

// MonthCount holds label counts for one calendar month (1-12).
type MonthCount struct {
	Month      int
	Fraud      int64
	Legitimate int64
}

const predictionColumns = `id, user_id, features, prediction, probability, ml_model_version, created_at`

// CreatePrediction inserts a prediction record.
func (r *Repository) CreatePrediction(ctx context.Context, p *model.Prediction) error {
	query := `
		INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Features,
		p.Prediction,
		p.Probability,
		p.MLModelVersion,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPredictionExists
		}
		return fmt.Errorf("failed to create prediction: %w", err)
	}
	return nil
}

// ListPredictionsByUser returns one page of the user's predictions, newest first.
func (r *Repository) ListPredictionsByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	predictions := make([]*model.Prediction, 0, limit)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	return predictions, nil
}

// CountPredictionsByUser returns how many predictions the user has saved.
func (r *Repository) CountPredictionsByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user predictions: %w", err)
	}
	return n, nil
}

// PredictionTotals returns the global prediction count, the fraud count and
// the number of distinct users with at least one prediction.
func (r *Repository) PredictionTotals(ctx context.Context) (total, fraud, activeUsers int64, err error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE prediction = 1),
			COUNT(DISTINCT user_id)
		FROM predictions
	`

	if err := r.pool.QueryRow(ctx, query).Scan(&total, &fraud, &activeUsers); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get prediction totals: %w", err)
	}
	return total, fraud, activeUsers, nil
}

// MonthlyCounts returns fraud and legitimate counts per month of year (UTC).
// Months without predictions are omitted.
func (r *Repository) MonthlyCounts(ctx context.Context, year int) ([]MonthCount, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	query := `
		SELECT
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			COUNT(*) FILTER (WHERE prediction = 1),
			COUNT(*) FILTER (WHERE prediction = 0)
		FROM predictions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY month
		ORDER BY month
	`

	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly counts: %w", err)
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthCount, error) {
		var c MonthCount
		err := row.Scan(&c.Month, &c.Fraud, &c.Legitimate)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan monthly counts: %w", err)
	}
	return counts, nil
}

// PredictionYears returns the distinct UTC years that have predictions, newest first.
func (r *Repository) PredictionYears(ctx context.Context) ([]int, error) {
	query := `
		SELECT DISTINCT EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int AS year
		FROM predictions
		ORDER BY year DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction years: %w", err)
	}

	years, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to scan prediction years: %w", err)
	}
	return years, nil
}

func scanPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	var label int16
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Features,
		&label,
		&p.Probability,
		&p.MLModelVersion,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Prediction = int(label)
	return &p, nil
}
