// Package service provides business logic for the application.
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/repository"
)

// Paging defaults for prediction history.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ReportedAccuracyRate is the published model accuracy shown on the dashboard.
const ReportedAccuracyRate = 94.2

// PredictionStore is the persistence the prediction service needs.
type PredictionStore interface {
	CreatePrediction(ctx context.Context, p *model.Prediction) error
	ListPredictionsByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Prediction, error)
	CountPredictionsByUser(ctx context.Context, userID string) (int64, error)
	PredictionTotals(ctx context.Context) (total, fraud, activeUsers int64, err error)
	MonthlyCounts(ctx context.Context, year int) ([]repository.MonthCount, error)
	PredictionYears(ctx context.Context) ([]int, error)
}

// CreatePredictionInput is a validated prediction to save.
type CreatePredictionInput struct {
	UserID         string
	Features       []float64
	Prediction     int
	Probability    float64
	MLModelVersion *string
}

// HistoryPage is one page of a user's predictions.
type HistoryPage struct {
	Items []*model.Prediction
	Page  int
	Limit int
	Total int64
}

// PredictionService handles prediction business logic.
type PredictionService struct {
	store   PredictionStore
	metrics metrics.Recorder
	now     func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewPredictionService creates a new PredictionService.
func NewPredictionService(store PredictionStore, recorder metrics.Recorder) *PredictionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PredictionService{
		store:   store,
		metrics: recorder,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Create stores a prediction for the caller and returns the saved record.
func (s *PredictionService) Create(ctx context.Context, input CreatePredictionInput) (*model.Prediction, error) {
	now := s.now().UTC()

	id, err := s.newID(now)
	if err != nil {
		return nil, fmt.Errorf("generate prediction id: %w", err)
	}

	p := &model.Prediction{
		ID:             id,
		UserID:         input.UserID,
		Features:       slices.Clone(input.Features),
		Prediction:     input.Prediction,
		Probability:    input.Probability,
		MLModelVersion: input.MLModelVersion,
		CreatedAt:      now.Truncate(time.Microsecond),
	}
	if err := s.store.CreatePrediction(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.IncPredictionCreated(p.Prediction)
	return p, nil
}

// History returns one page of the user's predictions, newest first.
// page below 1 is treated as 1; limit outside 1..MaxHistoryLimit is clamped.
func (s *PredictionService) History(ctx context.Context, userID string, page, limit int) (*HistoryPage, error) {
	page, limit = NormalizePaging(page, limit)

	items, err := s.store.ListPredictionsByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountPredictionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Prediction{}
	}

	return &HistoryPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// Stats returns the global dashboard counters.
func (s *PredictionService) Stats(ctx context.Context) (*model.DashboardStats, error) {
	total, _, active, err := s.store.PredictionTotals(ctx)
	if err != nil {
		return nil, err
	}
	return &model.DashboardStats{TotalPredictions: total, ActiveUsers: active}, nil
}

// Analytics builds the yearly view. Totals are global; the monthly series
// always has twelve entries for year.
func (s *PredictionService) Analytics(ctx context.Context, year int) (*model.Analytics, error) {
	total, fraud, _, err := s.store.PredictionTotals(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.store.MonthlyCounts(ctx, year)
	if err != nil {
		return nil, err
	}

	years, err := s.store.PredictionYears(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Analytics{
		TotalPredictions: total,
		FraudDetected:    fraud,
		AccuracyRate:     ReportedAccuracyRate,
		MonthlyStats:     monthlySeries(counts),
		AvailableYears:   availableYears(years, s.CurrentYear()),
	}, nil
}

// CurrentYear is the current UTC year.
func (s *PredictionService) CurrentYear() int {
	return s.now().UTC().Year()
}

func (s *PredictionService) newID(t time.Time) (string, error) {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NormalizePaging applies history paging defaults and bounds.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return page, limit
}

func monthlySeries(counts []repository.MonthCount) []model.MonthlyStat {
	series := make([]model.MonthlyStat, 12)
	for i := range series {
		series[i].Month = time.Month(i + 1).String()[:3]
	}
	for _, c := range counts {
		if c.Month < 1 || c.Month > 12 {
			continue
		}
		series[c.Month-1].Fraud = c.Fraud
		series[c.Month-1].Legitimate = c.Legitimate
	}
	return series
}

// availableYears returns years newest first with current always present.
func availableYears(years []int, current int) []int {
	out := slices.Clone(years)
	if !slices.Contains(out, current) {
		out = append(out, current)
	}
	slices.SortFunc(out, func(a, b int) int { return b - a })
	return slices.Compact(out)
}
