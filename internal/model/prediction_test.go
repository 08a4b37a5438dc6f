package model

import "testing"

func TestPrediction_IsFraud(t *testing.T) {
	tests := []struct {
		name  string
		label int
		want  bool
	}{
		{"fraud", PredictionFraud, true},
		{"legitimate", PredictionLegitimate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Prediction{Prediction: tt.label}
			if got := p.IsFraud(); got != tt.want {
				t.Errorf("IsFraud() = %v, want %v", got, tt.want)
			}
		})
	}
}
