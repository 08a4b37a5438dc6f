package auth

import (
	"context"

	"github.com/fraudguard/fraudguard/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity attaches the authenticated caller to ctx.
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the authenticated caller, or nil if absent.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok {
		return nil
	}
	return id
}

// MustIdentityFromContext panics when no identity is attached
// (use only behind the auth middleware).
func MustIdentityFromContext(ctx context.Context) *model.Identity {
	id := IdentityFromContext(ctx)
	if id == nil {
		panic("identity not found - ensure auth middleware is applied")
	}
	return id
}

// SubjectFromContext returns the verified subject id, or "" if unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.SubjectID
}
