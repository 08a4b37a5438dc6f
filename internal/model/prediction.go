package model

import "time"

// FeatureCount is the fixed length of a prediction feature vector.
const FeatureCount = 30

// Prediction labels.
const (
	PredictionLegitimate = 0
	PredictionFraud      = 1
)

// Prediction is one saved inference outcome for a user.
type Prediction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Features       []float64 `json:"features"`
	Prediction     int       `json:"prediction"`
	Probability    float64   `json:"probability"`
	MLModelVersion *string   `json:"mlModelVersion,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IsFraud reports whether the stored label marks the transaction as fraudulent.
func (p *Prediction) IsFraud() bool {
	return p.Prediction == PredictionFraud
}

// DashboardStats holds global prediction counters.
type DashboardStats struct {
	TotalPredictions int64 `json:"totalPredictions"`
	ActiveUsers      int64 `json:"activeUsers"`
}

// MonthlyStat counts labels for one calendar month.
type MonthlyStat struct {
	Month      string `json:"month"`
	Fraud      int64  `json:"fraud"`
	Legitimate int64  `json:"legitimate"`
}

// Analytics is the yearly analytics view.
type Analytics struct {
	TotalPredictions int64         `json:"totalPredictions"`
	FraudDetected    int64         `json:"fraudDetected"`
	AccuracyRate     float64       `json:"accuracyRate"`
	MonthlyStats     []MonthlyStat `json:"monthlyStats"`
	AvailableYears   []int         `json:"availableYears"`
}
