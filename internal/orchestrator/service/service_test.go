package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/audit"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/mpc"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/quorum"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// fakeNodeAPI stands in for the key-share node HTTP protocol.
type fakeNodeAPI struct {
	mu        sync.Mutex
	fail      map[string]error // node id -> forced error
	registers map[string]int   // node id -> register calls
	gets      map[string]int
}

func newFakeNodeAPI() *fakeNodeAPI {
	return &fakeNodeAPI{
		fail:      make(map[string]error),
		registers: make(map[string]int),
		gets:      make(map[string]int),
	}
}

func (f *fakeNodeAPI) GetKeyShares(_ context.Context, node quorum.Node, _ types.KeyShareGetRequest) (types.CurveShares, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets[node.ID]++
	if err := f.fail[node.ID]; err != nil {
		return types.CurveShares{}, err
	}
	return types.CurveShares{Ed25519: &types.ShareResult{ShareID: uuid.NewString(), Share: "aa"}}, nil
}

func (f *fakeNodeAPI) RegisterKeyShares(_ context.Context, node quorum.Node, _ types.KeyShareRegisterRequest) (types.CurveRegistrations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[node.ID]++
	if err := f.fail[node.ID]; err != nil {
		return types.CurveRegistrations{}, err
	}
	return types.CurveRegistrations{}, nil
}

func (f *fakeNodeAPI) ReshareKeyShares(_ context.Context, node quorum.Node, _ types.KeyShareRegisterRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[node.ID]
}

func (f *fakeNodeAPI) ReshareRegister(_ context.Context, node quorum.Node, _ types.KeyShareRegisterRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[node.ID]
}

// fakeVerifier resolves any id token to an identity whose email is the token
// itself.
type fakeVerifier struct {
	err error
}

func (f fakeVerifier) Verify(_ context.Context, at oauth.AuthType, idToken string) (oauth.Identity, error) {
	if f.err != nil {
		return oauth.Identity{}, f.err
	}
	return oauth.Identity{AuthType: at, UserIdentifier: "uid-" + idToken, Email: idToken}, nil
}

type env struct {
	nodeSeq  int
	reg      *registry.MemoryRegistry
	sessions *tssstore.MemoryStore
	gateway  *encryption.Gateway
	api      *fakeNodeAPI
	tokens   *auth.TokenService
	keygen   *KeygenService
	presign  *PresignService
	users    *UserService
	reshare  *ReshareService
	admin    *NodeAdminService
}

func newEnv(t *testing.T, threshold int) *env {
	t.Helper()
	gateway, err := encryption.NewGateway("test-deployment-secret")
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("test-jwt-secret", time.Hour)
	require.NoError(t, err)

	reg := registry.NewMemoryRegistry()
	sessions := tssstore.NewMemoryStore()
	api := newFakeNodeAPI()
	client := quorum.NewClient(api)

	return &env{
		reg:      reg,
		sessions: sessions,
		gateway:  gateway,
		api:      api,
		tokens:   tokens,
		keygen:   NewKeygenService(reg, sessions, gateway, client, tokens, audit.NoopPublisher{}, threshold),
		presign:  NewPresignService(reg, sessions, gateway),
		users:    NewUserService(reg, tokens, fakeVerifier{}, threshold),
		reshare:  NewReshareService(reg, sessions, client, threshold),
		admin:    NewNodeAdminService(reg, audit.NoopPublisher{}),
	}
}

// addNodes registers n active key-share nodes and returns them.
func (e *env) addNodes(t *testing.T, n int) []model.KeyShareNode {
	t.Helper()
	nodes := make([]model.KeyShareNode, 0, n)
	for i := 0; i < n; i++ {
		e.nodeSeq++
		node := &model.KeyShareNode{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("node-%d", e.nodeSeq),
			ServerURL: fmt.Sprintf("http://ksn-%d.internal", e.nodeSeq),
			Status:    model.StatusActive,
		}
		require.NoError(t, e.reg.CreateNode(context.Background(), node))
		nodes = append(nodes, *node)
	}
	return nodes
}

func testIdentity(email string) oauth.Identity {
	return oauth.Identity{AuthType: oauth.AuthTypeGoogle, UserIdentifier: "uid-" + email, Email: email}
}

// clientKeygenRequest builds a keygen request with a freshly generated client
// verifying share.
func clientKeygenRequest(t *testing.T, curve types.CurveType) KeygenRequest {
	t.Helper()
	var pub []byte
	var err error
	if curve == types.CurveEd25519 {
		_, pub, err = mpc.GenerateEd25519Share()
	} else {
		_, pub, err = mpc.GenerateSecp256k1Share()
	}
	require.NoError(t, err)
	return KeygenRequest{
		CurveType:       string(curve),
		ClientPublicKey: hex.EncodeToString(pub),
		NodeShare:       "deadbeef",
	}
}
