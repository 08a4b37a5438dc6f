package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fraudguard/fraudguard/internal/handler/dto"
	"github.com/fraudguard/fraudguard/internal/middleware"
	"github.com/fraudguard/fraudguard/internal/model"
)

// UserProvisioner finds a user or creates it without overwriting synced data.
type UserProvisioner interface {
	CreateUserIfAbsent(ctx context.Context, externalID string, profile model.UserProfile) (*model.User, error)
}

// AuthHandler serves token verification for the dashboard's sign-in flow.
type AuthHandler struct {
	verifier middleware.TokenVerifier
	users    UserProvisioner
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(verifier middleware.TokenVerifier, users UserProvisioner, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		users:    users,
		logger:   logger.With("handler", "auth"),
	}
}

// Verify handles POST /api/auth/verify. It returns the caller's local user,
// creating it from the optional body hints when the webhook has not
// arrived yet. Every failure is reported the same way.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r)
	if err != nil {
		h.reject(w, r, "missing_token", err)
		return
	}

	claims, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.reject(w, r, "invalid_token", err)
		return
	}

	// Hints are best effort; an unreadable body just means no hints.
	var hints dto.VerifyRequest
	_ = json.NewDecoder(r.Body).Decode(&hints)

	user, err := h.users.CreateUserIfAbsent(r.Context(), claims.Subject, model.UserProfile{
		Email:     hints.Email,
		FirstName: hints.FirstName,
		LastName:  hints.LastName,
	})
	if err != nil {
		h.reject(w, r, "user_provisioning", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VerifyResponse{Success: true, User: user})
}

func (h *AuthHandler) reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	h.logger.Warn("token verification failed",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeFailure(w, http.StatusUnauthorized, "Invalid token or server error")
}
