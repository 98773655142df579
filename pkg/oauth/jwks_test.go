package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, hits *atomic.Int32, keys []JWK) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(jwksDocument{Keys: keys})
	}))
}

func TestJWKSCache_KeyCachesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := newJWKSServer(t, &hits, []JWK{{Kid: "kid-1", Kty: "RSA"}})
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, srv.Client())

	for range 3 {
		key, err := cache.Key(context.Background(), "kid-1")
		require.NoError(t, err)
		assert.Equal(t, "RSA", key.Kty)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestJWKSCache_UnknownKidRefreshesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := newJWKSServer(t, &hits, []JWK{{Kid: "kid-1"}})
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, srv.Client())

	_, err := cache.Key(context.Background(), "kid-missing")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestJWKSCache_RefreshReplacesKeys(t *testing.T) {
	var hits atomic.Int32
	srv := newJWKSServer(t, &hits, []JWK{{Kid: "kid-2", Alg: "ES256"}})
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, 0, srv.Client())
	require.NoError(t, cache.Refresh(context.Background()))

	key, err := cache.Key(context.Background(), "kid-2")
	require.NoError(t, err)
	assert.Equal(t, "ES256", key.Alg)
}

func TestJWKSCache_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour, srv.Client())
	err := cache.Refresh(context.Background())
	assert.Error(t, err)
}

func TestParseAuthType(t *testing.T) {
	for _, valid := range []string{"google", "auth0", "telegram", "discord", "x"} {
		at, err := ParseAuthType(valid)
		require.NoError(t, err)
		assert.Equal(t, AuthType(valid), at)
	}

	_, err := ParseAuthType("facebook")
	assert.Error(t, err)
}
