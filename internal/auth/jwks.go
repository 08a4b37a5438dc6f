package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fraudguard/fraudguard/internal/metrics"
)

var (
	// ErrKeyNotFound is returned when the key set has no key for a kid.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrJWKSUnavailable is returned when the key set cannot be fetched.
	ErrJWKSUnavailable = errors.New("key set unavailable")
)

const maxJWKSBodySize = 1 << 20

// JWKSOptions tunes a JWKSClient. Zero values take the defaults.
type JWKSOptions struct {
	FetchTimeout       time.Duration
	CacheTTL           time.Duration
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

// JWKSClient serves RSA verification keys from a remote key set, cached by kid.
type JWKSClient struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	ttl        time.Duration
	minRefresh time.Duration
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// NewJWKSClient creates a JWKSClient for url.
func NewJWKSClient(url string, opts JWKSOptions, logger *slog.Logger, recorder metrics.Recorder) *JWKSClient {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.MinRefreshInterval < 0 {
		opts.MinRefreshInterval = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.FetchTimeout}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return &JWKSClient{
		url:        url,
		httpClient: opts.HTTPClient,
		timeout:    opts.FetchTimeout,
		ttl:        opts.CacheTTL,
		minRefresh: opts.MinRefreshInterval,
		logger:     logger,
		metrics:    recorder,
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Key returns the verification key for kid.
//
// A fresh cache hit is served directly. An expired cache or an unknown kid
// triggers a refetch, at most one per MinRefreshInterval. If the refetch
// fails a previously cached key is still served.
func (c *JWKSClient) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, seen, fresh, mayRefresh := c.lookup(kid)
	if key != nil && fresh {
		return key, nil
	}

	if mayRefresh {
		if err := c.refresh(ctx, seen); err != nil {
			if key != nil {
				c.logger.Warn("serving stale signing key",
					slog.String("kid", kid),
					slog.String("error", err.Error()),
				)
				return key, nil
			}
			return nil, err
		}
		key, _, _, _ = c.lookup(kid)
	}

	if key == nil {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// lookup also returns the fetch time the answer was based on.
func (c *JWKSClient) lookup(kid string) (key *rsa.PublicKey, fetchedAt time.Time, fresh, mayRefresh bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	key = c.keys[kid]
	fresh = !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl
	mayRefresh = c.lastAttempt.IsZero() || now.Sub(c.lastAttempt) >= c.minRefresh
	return key, c.fetchedAt, fresh, mayRefresh
}

// refresh fetches the key set once for all concurrent callers. It is a
// no-op when the cache was already replaced after seen.
func (c *JWKSClient) refresh(ctx context.Context, seen time.Time) error {
	ch := c.group.DoChan("jwks", func() (any, error) {
		c.mu.Lock()
		if c.fetchedAt.After(seen) {
			c.mu.Unlock()
			return nil, nil
		}
		c.lastAttempt = c.now()
		c.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		keys, err := c.fetch(fetchCtx)
		if err != nil {
			c.metrics.IncJWKSRefresh("failed")
			return nil, err
		}

		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = c.now()
		c.mu.Unlock()

		c.metrics.IncJWKSRefresh("success")
		c.logger.Debug("key set refreshed", slog.Int("keys", len(keys)))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrJWKSUnavailable, resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBodySize)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			c.logger.Warn("skipping malformed key", slog.String("kid", k.Kid), slog.String("error", err.Error()))
			continue
		}
		keys[k.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no usable RSA signing keys", ErrJWKSUnavailable)
	}
	return keys, nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("invalid key parameters")
	}

	exp := new(big.Int).SetBytes(e)
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
