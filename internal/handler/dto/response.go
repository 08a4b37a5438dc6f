package dto

import "github.com/fraudguard/fraudguard/internal/model"

// ErrorResponse is the uniform failure body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// VerifyRequest carries optional profile hints for lazy user creation.
type VerifyRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// VerifyResponse returns the caller's local user record.
type VerifyResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

// ProtectedResponse is returned by the protected-route probe.
type ProtectedResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}
