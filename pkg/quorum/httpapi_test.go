package quorum

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

	"github.com/chainapsis/oko-tss/pkg/types"
)

func TestHTTPNodeAPI_GetKeyShares(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathGet, r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req types.KeyShareGetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserAuthID)

		json.NewEncoder(w).Encode(types.OkResp(types.CurveShares{
			Secp256k1: &types.ShareResult{ShareID: "s1", Share: "cafebabe"},
		}))
	}))
	defer srv.Close()

	api := NewHTTPNodeAPI(2*time.Second, 1, "secret-token")
	shares, err := api.GetKeyShares(context.Background(), Node{Name: "n1", Endpoint: srv.URL}, getReq())
	require.NoError(t, err)
	require.NotNil(t, shares.Secp256k1)
	assert.Equal(t, "cafebabe", shares.Secp256k1.Share)
}

func TestHTTPNodeAPI_Retries5xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(types.OkResp(types.CurveShares{}))
	}))
	defer srv.Close()

	api := NewHTTPNodeAPI(2*time.Second, 2, "")
	_, err := api.GetKeyShares(context.Background(), Node{Name: "n1", Endpoint: srv.URL}, getReq())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPNodeAPI_TypedFailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(types.ErrResp(types.E(types.ErrKeyShareNotFound, "no share stored")))
	}))
	defer srv.Close()

	api := NewHTTPNodeAPI(2*time.Second, 3, "")
	_, err := api.GetKeyShares(context.Background(), Node{Name: "n1", Endpoint: srv.URL}, getReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrKeyShareNotFound, types.CodeOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPNodeAPI_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	api := NewHTTPNodeAPI(2*time.Second, 2, "")
	_, err := api.GetKeyShares(context.Background(), Node{Name: "n1", Endpoint: srv.URL}, getReq())
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPNodeAPI_UnreachableNode(t *testing.T) {
	api := NewHTTPNodeAPI(500*time.Millisecond, 1, "")
	_, err := api.GetKeyShares(context.Background(), Node{Name: "n1", Endpoint: "http://127.0.0.1:1"}, getReq())
	require.Error(t, err)
	assert.Equal(t, Retryable, Classify(err))
}
