// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fraudguard/fraudguard/internal/metrics"
)

// SigningAlgorithm is the only accepted token algorithm.
const SigningAlgorithm = "RS256"

// ErrInvalidToken is the single error returned for any rejected token.
var ErrInvalidToken = errors.New("invalid or expired token")

var (
	errMissingKID     = errors.New("token header has no kid")
	errMissingSubject = errors.New("token has no subject")
)

// KeySource resolves a key id to a verification key.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Claims are the verified token claims.
type Claims struct {
	jwt.RegisteredClaims
	SessionID       string `json:"sid,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
}

// TokenVerifier checks signature, algorithm, issuer, expiry and subject.
type TokenVerifier struct {
	keys    KeySource
	issuer  string
	leeway  time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewTokenVerifier creates a TokenVerifier for tokens from issuer.
func NewTokenVerifier(keys KeySource, issuer string, leeway time.Duration, logger *slog.Logger, recorder metrics.Recorder) *TokenVerifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &TokenVerifier{
		keys:    keys,
		issuer:  issuer,
		leeway:  leeway,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// Verify returns the claims of a valid token. Every failure is reported as
// ErrInvalidToken; the reason is only logged and counted.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKID
		}
		return v.keys.Key(ctx, kid)
	})
	if err == nil && claims.Subject == "" {
		err = errMissingSubject
	}

	if err != nil {
		reason := failureReason(err)
		v.metrics.IncAuthFailure(reason)
		v.logger.Debug("token rejected",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errMissingKID):
		return "missing_kid"
	case errors.Is(err, ErrKeyNotFound):
		return "unknown_kid"
	case errors.Is(err, ErrJWKSUnavailable):
		return "jwks_unavailable"
	case errors.Is(err, errMissingSubject):
		return "missing_subject"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
