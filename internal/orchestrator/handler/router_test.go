package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/service"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/audit"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/mpc"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/quorum"
	"github.com/chainapsis/oko-tss/pkg/types"
)

const adminToken = "test-admin-token"

// passVerifier accepts every id token and uses it as the email.
type passVerifier struct{}

func (passVerifier) Verify(_ context.Context, at oauth.AuthType, idToken string) (oauth.Identity, error) {
	return oauth.Identity{AuthType: at, UserIdentifier: "uid-" + idToken, Email: idToken}, nil
}

// okNodeAPI accepts every key-share node call.
type okNodeAPI struct{}

func (okNodeAPI) GetKeyShares(context.Context, quorum.Node, types.KeyShareGetRequest) (types.CurveShares, error) {
	return types.CurveShares{}, nil
}

func (okNodeAPI) RegisterKeyShares(context.Context, quorum.Node, types.KeyShareRegisterRequest) (types.CurveRegistrations, error) {
	return types.CurveRegistrations{}, nil
}

func (okNodeAPI) ReshareKeyShares(context.Context, quorum.Node, types.KeyShareRegisterRequest) error {
	return nil
}

func (okNodeAPI) ReshareRegister(context.Context, quorum.Node, types.KeyShareRegisterRequest) error {
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gateway, err := encryption.NewGateway("test-secret")
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("test-jwt-secret", time.Hour)
	require.NoError(t, err)

	reg := registry.NewMemoryRegistry()
	sessions := tssstore.NewMemoryStore()
	client := quorum.NewClient(okNodeAPI{})
	verifier := passVerifier{}

	for i := 0; i < 2; i++ {
		require.NoError(t, reg.CreateNode(context.Background(), &model.KeyShareNode{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("node-%d", i+1),
			ServerURL: fmt.Sprintf("http://ksn-%d.internal", i+1),
			Status:    model.StatusActive,
		}))
	}

	keygen := service.NewKeygenService(reg, sessions, gateway, client, tokens, audit.NoopPublisher{}, 2)
	presign := service.NewPresignService(reg, sessions, gateway)
	users := service.NewUserService(reg, tokens, verifier, 2)
	reshares := service.NewReshareService(reg, sessions, client, 2)
	admin := service.NewNodeAdminService(reg, audit.NoopPublisher{})

	return NewRouter(RouterDeps{
		Users:      NewUserHandler(users, reshares),
		TSS:        NewTSSHandler(keygen, presign),
		Nodes:      NewNodeHandler(admin),
		Tokens:     tokens,
		Verifier:   verifier,
		AdminToken: adminToken,
	})
}

func doPost(t *testing.T, r *gin.Engine, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, types.Resp) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp types.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func oauthHeaders(email string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + email,
		"X-Auth-Type":   "google",
	}
}

func keygenRequestBody(t *testing.T) map[string]string {
	t.Helper()
	_, pub, err := mpc.GenerateEd25519Share()
	require.NoError(t, err)
	return map[string]string{
		"curve_type":        "ed25519",
		"client_public_key": hex.EncodeToString(pub),
		"node_share":        "deadbeef",
	}
}

// runKeygen performs a keygen over HTTP and returns the session token and
// wallet id.
func runKeygen(t *testing.T, r *gin.Engine, email string) (token, walletID string) {
	t.Helper()
	w, resp := doPost(t, r, "/tss/v1/keygen_ed25519", keygenRequestBody(t), oauthHeaders(email))
	require.Equal(t, http.StatusOK, w.Code, resp.Msg)
	data := resp.Data.(map[string]any)
	return data["token"].(string), data["wallet_id"].(string)
}

func TestRouter_KeygenPresignAbortFlow(t *testing.T) {
	r := newTestRouter(t)
	token, walletID := runKeygen(t, r, "a@b.com")
	bearer := map[string]string{"Authorization": "Bearer " + token}

	w, resp := doPost(t, r, "/tss/v1/presign_ed25519", map[string]string{"wallet_id": walletID}, bearer)
	require.Equal(t, http.StatusOK, w.Code, resp.Msg)
	sessionID := resp.Data.(map[string]any)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	w, _ = doPost(t, r, "/tss/v1/session/abort", map[string]string{"session_id": sessionID}, bearer)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = doPost(t, r, "/tss/v1/session/abort", map[string]string{"session_id": sessionID}, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, types.ErrInvalidTssSession, resp.Code)
}

func TestRouter_PresignRequiresSessionToken(t *testing.T) {
	r := newTestRouter(t)
	_, walletID := runKeygen(t, r, "a@b.com")

	w, resp := doPost(t, r, "/tss/v1/presign_ed25519", map[string]string{"wallet_id": walletID}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, types.ErrUnauthorized, resp.Code)

	w, _ = doPost(t, r, "/tss/v1/presign_ed25519", map[string]string{"wallet_id": walletID},
		map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_KeygenRequiresIdentity(t *testing.T) {
	r := newTestRouter(t)

	w, _ := doPost(t, r, "/tss/v1/keygen_ed25519", keygenRequestBody(t), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doPost(t, r, "/tss/v1/keygen_ed25519", keygenRequestBody(t),
		map[string]string{"Authorization": "Bearer a@b.com", "X-Auth-Type": "smoke-signal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SignInFlow(t *testing.T) {
	r := newTestRouter(t)
	runKeygen(t, r, "a@b.com")

	w, resp := doPost(t, r, "/tss/v1/user/signin", struct{}{}, oauthHeaders("a@b.com"))
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	token := data["token"].(string)
	assert.NotEmpty(t, token)

	w, resp = doPost(t, r, "/tss/v1/user/signin_silently", struct{}{},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp.Data.(map[string]any)["token"])

	// Unknown users cannot sign in.
	w, resp = doPost(t, r, "/tss/v1/user/signin", struct{}{}, oauthHeaders("nobody@b.com"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, types.ErrUserNotFound, resp.Code)
}

func TestRouter_CheckUser(t *testing.T) {
	r := newTestRouter(t)
	runKeygen(t, r, "a@b.com")

	w, resp := doPost(t, r, "/tss/v1/user/check", map[string]string{"email": "a@b.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["exists"])

	w, resp = doPost(t, r, "/tss/v1/user/check", map[string]string{"email": "nobody@b.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]any)["exists"])
}

func TestRouter_NodeAdminAuth(t *testing.T) {
	r := newTestRouter(t)
	body := map[string]string{"name": "ksn-3", "server_url": "http://ksn-3.internal"}

	w, _ := doPost(t, r, "/tss/v1/node", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doPost(t, r, "/tss/v1/node", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := doPost(t, r, "/tss/v1/node", body, map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp.Data.(map[string]any)["ID"])
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
