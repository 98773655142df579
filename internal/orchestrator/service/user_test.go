package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/types"
)

func TestCheckUser_UnknownUser(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 3)

	result, err := e.users.CheckUser(context.Background(), "nobody@b.com")
	require.NoError(t, err)
	assert.False(t, result.Exists)
	assert.Equal(t, 2, result.KeyshareNodeMeta.Threshold)
	assert.Len(t, result.KeyshareNodeMeta.Nodes, 3)
	assert.False(t, result.NeedsReshare)
}

func TestCheckUser_HealthyWallet(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 3)
	keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	result, err := e.users.CheckUser(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.False(t, result.NeedsReshare)
	assert.Empty(t, result.ReshareReasons)
	assert.False(t, result.ActiveNodesBelowThreshold)
	for _, n := range result.KeyshareNodeMeta.Nodes {
		assert.Equal(t, model.EdgeActive, n.WalletStatus)
	}
}

func TestCheckUser_NewNodeAdded(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 2)
	keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	// A node joins the active set after keygen: the wallet has no edge to it.
	e.addNodes(t, 1)

	result, err := e.users.CheckUser(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, result.NeedsReshare)
	assert.Contains(t, result.ReshareReasons, model.ReshareReasonNewNodeAdded)
}

func TestCheckUser_UnrecoverableDataLoss(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 3)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	require.NoError(t, e.reg.UpsertWalletNode(ctx, wallet.WalletID, nodes[0].ID, model.EdgeUnrecoverable))
	require.NoError(t, e.reg.UpsertWalletNode(ctx, wallet.WalletID, nodes[1].ID, model.EdgeUnrecoverable))

	result, err := e.users.CheckUser(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, result.NeedsReshare)
	assert.Contains(t, result.ReshareReasons, model.ReshareReasonDataLoss)
	// Only one healthy edge left against a threshold of two.
	assert.True(t, result.ActiveNodesBelowThreshold)
}

func TestSignIn(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 2)
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	// The fake verifier maps the id token to the email.
	result, err := e.users.SignIn(context.Background(), "google", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", result.User.Email)
	assert.Equal(t, wallet.WalletID, result.User.WalletID)
	assert.Equal(t, wallet.PublicKey, result.User.PublicKey)

	claims, err := e.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet.WalletID, claims.WalletID)
}

func TestSignIn_Failures(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 2)
	ctx := context.Background()

	_, err := e.users.SignIn(ctx, "carrier-pigeon", "a@b.com")
	assert.Equal(t, types.ErrBadRequest, types.CodeOf(err))

	_, err = e.users.SignIn(ctx, "google", "nobody@b.com")
	assert.Equal(t, types.ErrUserNotFound, types.CodeOf(err))
}

func TestSignInSilently_RefreshesExpiredToken(t *testing.T) {
	e := newEnv(t, 2)
	e.addNodes(t, 2)
	keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	// Issue a token that is already expired but authentic.
	expired, err := auth.NewTokenService("test-jwt-secret", -time.Minute)
	require.NoError(t, err)
	token, err := expired.Issue("uid", "a@b.com", "w1")
	require.NoError(t, err)
	_, err = e.tokens.Verify(token)
	require.Error(t, err)

	result, err := e.users.SignInSilently(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", result.User.Email)

	_, err = e.tokens.Verify(result.Token)
	require.NoError(t, err)
}

func TestSignInSilently_RejectsForgedToken(t *testing.T) {
	e := newEnv(t, 2)

	forged, err := auth.NewTokenService("some-other-secret", time.Hour)
	require.NoError(t, err)
	token, err := forged.Issue("uid", "a@b.com", "w1")
	require.NoError(t, err)

	_, err = e.users.SignInSilently(context.Background(), token)
	assert.Equal(t, types.ErrUnauthorized, types.CodeOf(err))
}
