package quorum

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/pkg/types"
)

// fakeNodeAPI answers per-node according to a script keyed by node ID.
type fakeNodeAPI struct {
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

func newFakeNodeAPI(errs map[string]error) *fakeNodeAPI {
	return &fakeNodeAPI{errs: errs, calls: make(map[string]int)}
}

func (f *fakeNodeAPI) GetKeyShares(_ context.Context, node Node, _ types.KeyShareGetRequest) (types.CurveShares, error) {
	f.mu.Lock()
	f.calls[node.ID]++
	err := f.errs[node.ID]
	f.mu.Unlock()
	if err != nil {
		return types.CurveShares{}, err
	}
	return types.CurveShares{
		Secp256k1: &types.ShareResult{ShareID: "share-" + node.ID, Share: "deadbeef"},
	}, nil
}

func (f *fakeNodeAPI) RegisterKeyShares(_ context.Context, node Node, _ types.KeyShareRegisterRequest) (types.CurveRegistrations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[node.ID]++
	if err := f.errs[node.ID]; err != nil {
		return types.CurveRegistrations{}, err
	}
	return types.CurveRegistrations{}, nil
}

func (f *fakeNodeAPI) ReshareKeyShares(_ context.Context, node Node, _ types.KeyShareRegisterRequest) error {
	return f.errs[node.ID]
}

func (f *fakeNodeAPI) ReshareRegister(_ context.Context, node Node, _ types.KeyShareRegisterRequest) error {
	return f.errs[node.ID]
}

func threeNodes() []Node {
	return []Node{
		{ID: "n1", Name: "node-1", Endpoint: "http://node-1"},
		{ID: "n2", Name: "node-2", Endpoint: "http://node-2"},
		{ID: "n3", Name: "node-3", Endpoint: "http://node-3"},
	}
}

func getReq() types.KeyShareGetRequest {
	return types.KeyShareGetRequest{
		AuthType:   "google",
		UserAuthID: "user-1",
		Wallets:    types.CurveWallets{Secp256k1: &types.WalletShare{PublicKey: "02ab"}},
	}
}

func TestRequestKeyShares_AllHealthy(t *testing.T) {
	api := newFakeNodeAPI(nil)
	client := NewClient(api)

	shares, err := client.RequestKeyShares(context.Background(), threeNodes(), 2, getReq())
	require.NoError(t, err)
	assert.Len(t, shares, 2)
}

func TestRequestKeyShares_OneNodeDownUsesBackup(t *testing.T) {
	// One node is permanently down; with threshold=2 out of 3 the gather
	// must still succeed, at most pulling the one backup node in.
	api := newFakeNodeAPI(map[string]error{"n2": errors.New("connection refused")})
	client := NewClient(api)

	shares, err := client.RequestKeyShares(context.Background(), threeNodes(), 2, getReq())
	require.NoError(t, err)
	assert.Len(t, shares, 2)
	for _, s := range shares {
		assert.NotEqual(t, "n2", s.Node.ID)
	}
}

func TestRequestKeyShares_TwoNodesDownInsufficient(t *testing.T) {
	api := newFakeNodeAPI(map[string]error{
		"n1": errors.New("timeout"),
		"n3": errors.New("timeout"),
	})
	client := NewClient(api)

	_, err := client.RequestKeyShares(context.Background(), threeNodes(), 2, getReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientShares, types.CodeOf(err))
	assert.Contains(t, err.Error(), "got 1, need 2")
}

func TestRequestKeyShares_FatalErrorAbortsImmediately(t *testing.T) {
	api := newFakeNodeAPI(map[string]error{
		"n1": types.E(types.ErrKeyShareNotFound, "no share"),
		"n2": types.E(types.ErrKeyShareNotFound, "no share"),
		"n3": types.E(types.ErrKeyShareNotFound, "no share"),
	})
	client := NewClient(api)

	_, err := client.RequestKeyShares(context.Background(), threeNodes(), 2, getReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrWalletNotFound, types.CodeOf(err))

	// Only the first round ran; backups were never consulted.
	total := 0
	for _, n := range api.calls {
		total += n
	}
	assert.Equal(t, 2, total)
}

func TestRequestKeyShares_ThresholdBelowOne(t *testing.T) {
	client := NewClient(newFakeNodeAPI(nil))
	_, err := client.RequestKeyShares(context.Background(), threeNodes(), 0, getReq())
	assert.Equal(t, types.ErrInsufficientShares, types.CodeOf(err))
}

func TestRequestKeyShares_FewerNodesThanThreshold(t *testing.T) {
	client := NewClient(newFakeNodeAPI(nil))
	_, err := client.RequestKeyShares(context.Background(), threeNodes()[:1], 2, getReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientShares, types.CodeOf(err))
}

func TestRegisterKeyShares_DuplicateIsSuccess(t *testing.T) {
	api := newFakeNodeAPI(map[string]error{
		"n1": types.E(types.ErrDuplicatePublicKey, "already registered"),
	})
	client := NewClient(api)

	err := client.RegisterKeyShares(context.Background(), threeNodes()[0], types.KeyShareRegisterRequest{})
	assert.NoError(t, err)
}

func TestRegisterKeyShares_OtherErrorsPropagate(t *testing.T) {
	api := newFakeNodeAPI(map[string]error{
		"n1": types.E(types.ErrCurveTypeNotSupported, "bad curve"),
	})
	client := NewClient(api)

	err := client.RegisterKeyShares(context.Background(), threeNodes()[0], types.KeyShareRegisterRequest{})
	assert.Equal(t, types.ErrCurveTypeNotSupported, types.CodeOf(err))
}
