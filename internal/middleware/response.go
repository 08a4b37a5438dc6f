// Package middleware provides the HTTP middleware chain, including the
// ordered guard pipeline for protected routes.
package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	ClerkID string       `json:"clerkId,omitempty"`
	Stack   string       `json:"stack,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeError(w, status, errorBody{Message: message})
}
