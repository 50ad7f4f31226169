package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultJWKSCacheTTL = time.Hour
	defaultJWKSTimeout  = 10 * time.Second
)

// JWKSCache holds the public keys published by the identity provider, keyed
// by kid. Keys are refetched after the TTL elapses; if a refetch fails the
// last-known-good set keeps serving so verification survives a transient
// provider outage.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSCache(url string, client *http.Client, ttl time.Duration) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: defaultJWKSTimeout}
	}
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	return &JWKSCache{
		url:    strings.TrimSpace(url),
		ttl:    ttl,
		client: client,
	}
}

// Key returns the RSA public key for kid. An unknown kid forces one fresh
// fetch of the key set before giving up, so recently rotated keys are picked
// up without waiting out the TTL.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if c == nil {
		return nil, errors.New("jwks cache is nil")
	}
	if c.url == "" {
		return nil, errors.New("jwks url is required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("kid is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := len(c.keys) > 0 && time.Now().UTC().Before(c.fetchedAt.Add(c.ttl))
	if fresh {
		if key, ok := c.keys[kid]; ok {
			return key, nil
		}
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q not found in jwks", kid)
	}
	return key, nil
}

// Invalidate drops the cached key set so the next lookup refetches.
func (c *JWKSCache) Invalidate() {
	c.mu.Lock()
	c.keys = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	next, err := c.fetch(ctx)
	if err != nil {
		if len(c.keys) > 0 {
			// Stale fallback: keep serving the previous key set.
			return nil
		}
		return err
	}
	c.keys = next
	c.fetchedAt = time.Now().UTC()
	return nil
}

func (c *JWKSCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch failed: status %d", resp.StatusCode)
	}
	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	next := map[string]*rsa.PublicKey{}
	for _, k := range payload.Keys {
		if !strings.EqualFold(k.Kty, "RSA") || strings.TrimSpace(k.Kid) == "" {
			continue
		}
		pub, err := rsaFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		next[k.Kid] = pub
	}
	if len(next) == 0 {
		return nil, errors.New("jwks has no usable rsa keys")
	}
	return next, nil
}

func rsaFromJWK(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	if len(eb) == 0 {
		return nil, errors.New("invalid exponent")
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e <= 1 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
