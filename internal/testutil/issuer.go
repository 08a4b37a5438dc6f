package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestIssuer is an RSA token issuer backed by an httptest JWKS endpoint.
type TestIssuer struct {
	Issuer string
	KID    string
	Key    *rsa.PrivateKey
	Server *httptest.Server

	mu       sync.Mutex
	keys     map[string]*rsa.PublicKey
	status   int
	requests atomic.Int64
}

// NewTestIssuer starts a JWKS server publishing one fresh 2048-bit key.
func NewTestIssuer(t testing.TB) *TestIssuer {
	t.Helper()

	key := GenerateRSAKey(t)
	iss := &TestIssuer{
		Issuer: "https://clerk.test.example",
		KID:    "test-key-1",
		Key:    key,
		keys:   map[string]*rsa.PublicKey{"test-key-1": &key.PublicKey},
		status: http.StatusOK,
	}

	iss.Server = httptest.NewServer(http.HandlerFunc(iss.serveJWKS))
	t.Cleanup(iss.Server.Close)
	return iss
}

// JWKSURL is the key set endpoint URL.
func (i *TestIssuer) JWKSURL() string {
	return i.Server.URL + "/.well-known/jwks.json"
}

// Requests returns how many times the key set was fetched.
func (i *TestIssuer) Requests() int64 {
	return i.requests.Load()
}

// Publish adds a public key to the key set.
func (i *TestIssuer) Publish(kid string, pub *rsa.PublicKey) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[kid] = pub
}

// FailWith makes the endpoint answer with status (200 restores it).
func (i *TestIssuer) FailWith(status int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = status
}

func (i *TestIssuer) serveJWKS(w http.ResponseWriter, r *http.Request) {
	i.requests.Add(1)

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != http.StatusOK {
		w.WriteHeader(i.status)
		return
	}

	type jwk struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	set := struct {
		Keys []jwk `json:"keys"`
	}{}
	for kid, pub := range i.keys {
		set.Keys = append(set.Keys, jwk{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// Claims returns valid claims for subject, expiring in an hour.
func (i *TestIssuer) Claims(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    i.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

// Token returns a valid RS256 token for subject.
func (i *TestIssuer) Token(t testing.TB, subject string) string {
	t.Helper()
	return SignRS256(t, i.Key, i.KID, i.Claims(subject))
}

// GenerateRSAKey returns a new 2048-bit key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

// SignRS256 signs claims with key, setting kid in the header when non-empty.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// SignHS256 signs claims with a shared secret, for algorithm confusion tests.
func SignHS256(t testing.TB, secret []byte, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
