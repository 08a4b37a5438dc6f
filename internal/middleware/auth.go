package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fraudguard/fraudguard/internal/auth"
	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/repository"
)

var (
	// ErrNoBearer is returned when the Authorization header is not a bearer credential.
	ErrNoBearer = errors.New("missing bearer authorization")
	// ErrEmptyToken is returned for "Bearer " with nothing after it.
	ErrEmptyToken = errors.New("no token provided")
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// UserLookup finds local users by subject id.
type UserLookup interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
	Users    UserLookup
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// Exactly one space separates scheme and token, and the token itself
// carries no whitespace.
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" {
		return "", ErrNoBearer
	}
	// "Bearer " and "Bearer  tok" have an empty second segment
	if token == "" || token[0] == ' ' || token[0] == '\t' {
		return "", ErrEmptyToken
	}
	if strings.ContainsAny(token, " \t") {
		return "", ErrNoBearer
	}
	return token, nil
}

// Authenticate runs the first three guard stages in order: bearer header,
// token verification, local user lookup. The verified identity is attached
// to the request context for the stages and handler that follow.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "missing_token")
				if errors.Is(err, ErrEmptyToken) {
					writeMessage(w, http.StatusUnauthorized, "No token provided")
					return
				}
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := cfg.Verifier.Verify(r.Context(), token)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_token")
				writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			user, err := cfg.Users.GetUserByExternalID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					cfg.Logger.Warn("authenticated subject has no local user",
						slog.String("user_id", claims.Subject),
						slog.String("endpoint", r.Method+" "+r.URL.Path),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusNotFound, errorBody{
						Message: "User not found in database",
						ClerkID: claims.Subject,
					})
					return
				}
				cfg.Logger.Error("database error during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeMessage(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), &model.Identity{
				SubjectID: claims.Subject,
				User:      user,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}
