package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

func TestRunKeygen_Success(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 3)
	ctx := context.Background()

	result, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	require.NoError(t, err)
	assert.NotEmpty(t, result.WalletID)
	assert.NotEmpty(t, result.PublicKey)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 3, result.RegisteredNodes)

	// The token is a valid session token for the new wallet.
	claims, err := e.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, result.WalletID, claims.WalletID)

	// Wallet and encrypted server share were persisted.
	wallet, err := e.reg.GetWallet(ctx, result.WalletID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, wallet.Status)
	assert.Equal(t, result.PublicKey, wallet.PublicKey)

	share, err := e.reg.GetServerShare(ctx, result.WalletID)
	require.NoError(t, err)
	signing, err := e.gateway.Decrypt(share.EncSigningShare)
	require.NoError(t, err)
	assert.Len(t, signing, 32)

	// One ACTIVE edge per node.
	edges, err := e.reg.ListWalletNodes(ctx, result.WalletID)
	require.NoError(t, err)
	assert.Len(t, edges, len(nodes))
	for _, edge := range edges {
		assert.Equal(t, model.EdgeActive, edge.Status)
	}
}

func TestRunKeygen_SecondKeygenSameCurveFails(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 3)
	ctx := context.Background()

	_, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	require.NoError(t, err)

	_, err = e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	assert.Equal(t, types.ErrWalletAlreadyExists, types.CodeOf(err))

	// A different curve is a different wallet.
	_, err = e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveSecp256k1))
	require.NoError(t, err)
}

func TestRunKeygen_NoActiveNodes(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	_, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	require.Error(t, err)
	assert.Equal(t, types.ErrKeyshareNodeInsufficient, types.CodeOf(err))
	assert.Contains(t, err.Error(), "no active ks nodes")
}

func TestRunKeygen_BelowThresholdRegistrations(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 3)
	e.api.fail[nodes[0].ID] = types.E(types.ErrUnknown, "node down")
	e.api.fail[nodes[1].ID] = types.E(types.ErrUnknown, "node down")
	ctx := context.Background()

	_, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	require.Error(t, err)
	assert.Equal(t, types.ErrKeyshareNodeInsufficient, types.CodeOf(err))
}

func TestRunKeygen_DuplicateRegisterCountsAsSuccess(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	e.api.fail[nodes[0].ID] = types.E(types.ErrDuplicatePublicKey, "already registered")
	ctx := context.Background()

	result, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), clientKeygenRequest(t, types.CurveEd25519))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RegisteredNodes)
}

func TestRunKeygen_InvalidInputs(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 2)
	ctx := context.Background()

	req := clientKeygenRequest(t, types.CurveEd25519)
	req.CurveType = "p256"
	_, err := e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), req)
	assert.Equal(t, types.ErrCurveTypeNotSupported, types.CodeOf(err))

	req = clientKeygenRequest(t, types.CurveEd25519)
	req.ClientPublicKey = "zz-not-hex"
	_, err = e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), req)
	assert.Equal(t, types.ErrPublicKeyInvalid, types.CodeOf(err))

	// An ed25519-length key offered for a secp256k1 keygen is rejected.
	req = clientKeygenRequest(t, types.CurveEd25519)
	req.CurveType = string(types.CurveSecp256k1)
	_, err = e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), req)
	assert.Equal(t, types.ErrPublicKeyInvalid, types.CodeOf(err))

	req = clientKeygenRequest(t, types.CurveEd25519)
	req.NodeShare = "not hex"
	_, err = e.keygen.RunKeygen(ctx, testIdentity("a@b.com"), req)
	assert.Equal(t, types.ErrBadRequest, types.CodeOf(err))
}
