package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/handler/dto"
	"github.com/fraudguard/fraudguard/internal/middleware"
	"github.com/fraudguard/fraudguard/internal/service"
)

// PredictionHandler serves prediction history and dashboard routes.
type PredictionHandler struct {
	svc    *service.PredictionService
	logger *slog.Logger
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(svc *service.PredictionService, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		svc:    svc,
		logger: logger.With("handler", "prediction"),
	}
}

// Create handles POST /api/predictions. It must be mounted behind
// middleware.ValidateJSON[dto.CreatePredictionRequest].
func (h *PredictionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.MustIdentityFromContext(ctx)

	req, ok := middleware.BodyFromContext[dto.CreatePredictionRequest](ctx)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.svc.Create(ctx, service.CreatePredictionInput{
		UserID:         id.SubjectID,
		Features:       req.FeatureValues(),
		Prediction:     *req.Prediction,
		Probability:    *req.Probability,
		MLModelVersion: req.MLModelVersion,
	})
	if err != nil {
		h.serverError(w, r, "failed to save prediction", err)
		return
	}

	h.logger.Info("prediction saved",
		slog.String("user_id", id.SubjectID),
		slog.String("prediction_id", p.ID),
		slog.Int("prediction", p.Prediction),
	)
	writeJSON(w, http.StatusCreated, dto.PredictionResponse{Success: true, Data: p})
}

// History handles GET /api/predictions/history?page=&limit=
func (h *PredictionHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.MustIdentityFromContext(ctx)

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", service.DefaultHistoryLimit)

	result, err := h.svc.History(ctx, id.SubjectID, page, limit)
	if err != nil {
		h.serverError(w, r, "failed to list predictions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PredictionListResponse{
		Success: true,
		Data:    result.Items,
		Meta:    dto.Meta{Page: result.Page, Limit: result.Limit, Total: result.Total},
	})
}

// Stats handles GET /api/predictions/stats
func (h *PredictionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, "failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StatsResponse{Success: true, Data: stats})
}

// Analytics handles GET /api/predictions/analytics?year=
func (h *PredictionHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	year := h.svc.CurrentYear()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1970 || parsed > 9999 {
			writeFailure(w, http.StatusBadRequest, "year must be a four-digit number")
			return
		}
		year = parsed
	}

	analytics, err := h.svc.Analytics(r.Context(), year)
	if err != nil {
		h.serverError(w, r, "failed to load analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AnalyticsResponse{Success: true, Data: analytics})
}

func (h *PredictionHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeFailure(w, http.StatusInternalServerError, "Internal server error")
}

// queryInt parses a query parameter, falling back to def when absent or invalid.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
