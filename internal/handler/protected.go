package handler

import (
	"net/http"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/handler/dto"
)

// Protected confirms the guard pipeline let the caller through.
// GET /api/protected
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	id := auth.MustIdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, dto.ProtectedResponse{
		Message: "Access granted to protected route",
		UserID:  id.SubjectID,
	})
}
