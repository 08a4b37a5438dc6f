package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/cache"
	"github.com/fraudguard/fraudguard/internal/handler/dto"
	"github.com/fraudguard/fraudguard/internal/middleware"
	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/service"
	"github.com/fraudguard/fraudguard/internal/testutil"
)

type apiEnv struct {
	router      http.Handler
	issuer      *testutil.TestIssuer
	users       *userStore
	predictions *predictionStore
}

// newAPIEnv wires the guarded prediction routes with a real RS256 verifier.
func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	env := &apiEnv{
		issuer:      testutil.NewTestIssuer(t),
		users:       newUserStore("user_1"),
		predictions: &predictionStore{},
	}

	jwks := auth.NewJWKSClient(env.issuer.JWKSURL(), auth.JWKSOptions{}, discardLogger(), nil)
	verifier := auth.NewTokenVerifier(jwks, env.issuer.Issuer, 5*time.Second, discardLogger(), nil)
	limiter := cache.NewMemoryLimiter(60, time.Minute, 0)
	h := NewPredictionHandler(service.NewPredictionService(env.predictions, nil), discardLogger())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(middleware.AuthConfig{Logger: discardLogger(), Verifier: verifier, Users: env.users}))
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{Logger: discardLogger(), Limiter: limiter, Enabled: true}))
		r.Get("/api/protected", New().Protected)
		r.With(middleware.ValidateJSON[dto.CreatePredictionRequest]()).Post("/api/predictions", h.Create)
		r.Get("/api/predictions/history", h.History)
		r.Get("/api/predictions/stats", h.Stats)
		r.Get("/api/predictions/analytics", h.Analytics)
	})
	env.router = r
	return env
}

func (env *apiEnv) do(t *testing.T, method, path, subject, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+env.issuer.Token(t, subject))
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func featuresJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%.2f", float64(i)/10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestPredictions_CreateValidation(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "29 features",
			body:        `{"features":` + featuresJSON(29) + `,"prediction":1,"probability":0.9}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgFeatures,
		},
		{
			name:        "prediction out of range",
			body:        `{"features":` + featuresJSON(30) + `,"prediction":2,"probability":0.9}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgPrediction,
		},
		{
			name:        "probability above one",
			body:        `{"features":` + featuresJSON(30) + `,"prediction":1,"probability":1.5}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgProbability,
		},
		{
			name:        "null feature entry",
			body:        `{"features":[null,` + strings.TrimPrefix(featuresJSON(29), "[") + `,"prediction":1,"probability":0.5}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgFeatures,
		},
		{
			name:        "null as last feature entry",
			body:        `{"features":` + strings.TrimSuffix(featuresJSON(29), "]") + `,null],"prediction":0,"probability":0}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgFeatures,
		},
		{
			name:        "features not numbers",
			body:        `{"features":["a"],"prediction":1,"probability":0.5}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: dto.MsgFeatures,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/predictions", "user_1", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeBody(t, rec); got["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %q", got["message"], tt.wantMessage)
			}
		})
	}

	if len(env.predictions.saved) != 0 {
		t.Errorf("invalid bodies saved %d predictions", len(env.predictions.saved))
	}
}

func TestPredictions_CreateEchoesRecord(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"features":` + featuresJSON(30) + `,"prediction":1,"probability":0.87,"mlModelVersion":"v2"}`
	rec := env.do(t, http.MethodPost, "/api/predictions", "user_1", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool             `json:"success"`
		Data    model.Prediction `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data.UserID != "user_1" || resp.Data.Prediction != 1 || resp.Data.Probability != 0.87 {
		t.Errorf("data = %+v", resp.Data)
	}
	if len(resp.Data.Features) != model.FeatureCount || resp.Data.ID == "" {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Data.MLModelVersion == nil || *resp.Data.MLModelVersion != "v2" {
		t.Errorf("mlModelVersion = %v", resp.Data.MLModelVersion)
	}
	if len(env.predictions.saved) != 1 || env.predictions.saved[0].ID != resp.Data.ID {
		t.Errorf("saved = %v", env.predictions.saved)
	}
}

func TestPredictions_GuardOrder(t *testing.T) {
	env := newAPIEnv(t)

	// An unknown subject is reported before the body is looked at.
	rec := env.do(t, http.MethodPost, "/api/predictions", "user_ghost", `{"features":[]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeBody(t, rec); got["clerkId"] != "user_ghost" {
		t.Errorf("clerkId = %v", got["clerkId"])
	}

	rec = env.do(t, http.MethodPost, "/api/predictions", "", `{"features":[]}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
}

func TestPredictions_HistoryStatsAnalytics(t *testing.T) {
	env := newAPIEnv(t)
	for i := range 3 {
		body := fmt.Sprintf(`{"features":%s,"prediction":%d,"probability":0.5}`, featuresJSON(30), i%2)
		if rec := env.do(t, http.MethodPost, "/api/predictions", "user_1", body); rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status = %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/predictions/history?page=1&limit=2", "user_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status = %d", rec.Code)
	}
	var history struct {
		Data []model.Prediction `json:"data"`
		Meta dto.Meta           `json:"meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Data) != 2 || history.Meta != (dto.Meta{Page: 1, Limit: 2, Total: 3}) {
		t.Errorf("history = %d items, meta %+v", len(history.Data), history.Meta)
	}

	rec = env.do(t, http.MethodGet, "/api/predictions/stats", "user_1", "")
	if got := decodeBody(t, rec)["data"].(map[string]any); got["totalPredictions"] != float64(3) || got["activeUsers"] != float64(1) {
		t.Errorf("stats = %v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/predictions/analytics", "user_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics: status = %d", rec.Code)
	}
	var analytics struct {
		Data model.Analytics `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&analytics); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if analytics.Data.TotalPredictions != 3 || analytics.Data.FraudDetected != 1 || len(analytics.Data.MonthlyStats) != 12 {
		t.Errorf("analytics = %+v", analytics.Data)
	}
	if analytics.Data.AvailableYears[0] != time.Now().UTC().Year() {
		t.Errorf("availableYears = %v", analytics.Data.AvailableYears)
	}

	rec = env.do(t, http.MethodGet, "/api/predictions/analytics?year=abc", "user_1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad year: status = %d, want 400", rec.Code)
	}
}

func TestProtected(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/protected", "user_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["message"] != "Access granted to protected route" || got["userId"] != "user_1" {
		t.Errorf("body = %v", got)
	}
}
