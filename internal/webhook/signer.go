// Package webhook verifies inbound identity-provider webhooks and records
// which messages have already been applied.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names set by the webhook sender.
const (
	HeaderMessageID = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const (
	// DefaultReplayWindow is the default replay protection window.
	DefaultReplayWindow = 5 * time.Minute

	secretPrefix     = "whsec_"
	signatureVersion = "v1"
)

var (
	// ErrMissingHeaders is returned when any of the three signature headers is absent.
	ErrMissingHeaders = errors.New("missing required headers")
	// ErrSecretNotConfigured is returned when the verifier has no shared secret.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Headers are the signature headers of one delivery.
type Headers struct {
	MessageID string
	Timestamp string
	Signature string
}

// Complete reports whether all three headers are present.
func (h Headers) Complete() bool {
	return h.MessageID != "" && h.Timestamp != "" && h.Signature != ""
}

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret       string
	replayWindow time.Duration
	now          func() time.Time
}

// NewVerifier creates a Verifier. An empty secret is accepted here and
// reported as ErrSecretNotConfigured on every Verify call.
func NewVerifier(secret string, replayWindow time.Duration) *Verifier {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	return &Verifier{
		secret:       strings.TrimSpace(secret),
		replayWindow: replayWindow,
		now:          time.Now,
	}
}

// Verify checks that body was signed by the holder of the shared secret.
// body must be the exact bytes received on the wire.
func (v *Verifier) Verify(body []byte, h Headers) error {
	if !h.Complete() {
		return ErrMissingHeaders
	}
	if v.secret == "" {
		return ErrSecretNotConfigured
	}

	key, err := decodeSecret(v.secret)
	if err != nil {
		return ErrSecretNotConfigured
	}

	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if abs(v.now().Unix()-ts) > int64(v.replayWindow.Seconds()) {
		return ErrInvalidSignature
	}

	expected := computeSignature(key, h.MessageID, h.Timestamp, body)

	for _, candidate := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// Sign returns a signature header value for body, in the same format the
// provider sends. Used by tests and the local test-webhook script.
func Sign(secret, messageID string, timestamp int64, body []byte) (string, error) {
	key, err := decodeSecret(strings.TrimSpace(secret))
	if err != nil {
		return "", fmt.Errorf("decode webhook secret: %w", err)
	}
	sig := computeSignature(key, messageID, strconv.FormatInt(timestamp, 10), body)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(sig), nil
}

// computeSignature signs "{id}.{timestamp}.{body}" with HMAC-SHA256.
func computeSignature(key []byte, messageID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(messageID))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// ValidateSecret reports whether secret is a usable signing secret.
func ValidateSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if _, err := decodeSecret(secret); err != nil {
		return fmt.Errorf("%w: not base64 after the %q prefix", ErrSecretNotConfigured, secretPrefix)
	}
	return nil
}

func decodeSecret(secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
