// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/fraudguard/fraudguard/internal/model"

// Validation messages for CreatePredictionRequest.
const (
	MsgFeatures    = "features must be an array of exactly 30 numbers"
	MsgPrediction  = "prediction must be 0 or 1"
	MsgProbability = "probability must be a number between 0 and 1"
)

// CreatePredictionRequest is the body of POST /api/predictions.
// Features holds pointers so a JSON null entry is rejected rather than
// decoded as 0.
type CreatePredictionRequest struct {
	Features       []*float64 `json:"features" validate:"required,len=30,dive,required"`
	Prediction     *int       `json:"prediction" validate:"required,oneof=0 1"`
	Probability    *float64   `json:"probability" validate:"required,gte=0,lte=1"`
	MLModelVersion *string    `json:"mlModelVersion,omitempty" validate:"omitempty,max=64"`
}

// FeatureValues returns the validated feature vector.
func (r *CreatePredictionRequest) FeatureValues() []float64 {
	out := make([]float64, len(r.Features))
	for i, f := range r.Features {
		if f != nil {
			out[i] = *f
		}
	}
	return out
}

// FieldMessages maps JSON fields to the messages clients rely on.
func (CreatePredictionRequest) FieldMessages() map[string]string {
	return map[string]string{
		"features":       MsgFeatures,
		"prediction":     MsgPrediction,
		"probability":    MsgProbability,
		"mlModelVersion": "mlModelVersion must be a string of at most 64 characters",
	}
}

// Meta is the paging block of list responses.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// PredictionResponse wraps one prediction.
type PredictionResponse struct {
	Success bool              `json:"success"`
	Data    *model.Prediction `json:"data"`
}

// PredictionListResponse is one page of predictions.
type PredictionListResponse struct {
	Success bool                `json:"success"`
	Data    []*model.Prediction `json:"data"`
	Meta    Meta                `json:"meta"`
}

// StatsResponse wraps dashboard counters.
type StatsResponse struct {
	Success bool                  `json:"success"`
	Data    *model.DashboardStats `json:"data"`
}

// AnalyticsResponse wraps the yearly analytics view.
type AnalyticsResponse struct {
	Success bool             `json:"success"`
	Data    *model.Analytics `json:"data"`
}
