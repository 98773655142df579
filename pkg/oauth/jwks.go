package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// JWK is a single key from a provider's JWKS document. Only the fields the
// verifiers read are modeled.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Crv string `json:"crv"`
}

type jwksDocument struct {
	Keys []JWK `json:"keys"`
}

// JWKSCache is an explicitly owned, injected cache of a provider's signing
// keys. Keys are refreshed lazily once the TTL elapses, or eagerly through
// Refresh (e.g. on an unknown-kid miss).
type JWKSCache struct {
	endpoint string
	ttl      time.Duration
	client   *http.Client

	mu        sync.RWMutex
	keys      map[string]JWK
	fetchedAt time.Time
}

func NewJWKSCache(endpoint string, ttl time.Duration, client *http.Client) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{
		endpoint: endpoint,
		ttl:      ttl,
		client:   client,
		keys:     make(map[string]JWK),
	}
}

// Key returns the signing key with the given kid, refreshing the cache first
// if it is stale or has never been filled.
func (c *JWKSCache) Key(ctx context.Context, kid string) (JWK, error) {
	c.mu.RLock()
	stale := time.Since(c.fetchedAt) > c.ttl || len(c.keys) == 0
	key, ok := c.keys[kid]
	c.mu.RUnlock()

	if ok && !stale {
		return key, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return JWK{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return JWK{}, fmt.Errorf("no signing key with kid %q", kid)
	}
	return key, nil
}

// Refresh fetches the JWKS document unconditionally.
func (c *JWKSCache) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]JWK, len(doc.Keys))
	for _, k := range doc.Keys {
		keys[k.Kid] = k
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}
