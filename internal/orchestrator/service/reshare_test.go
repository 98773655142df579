package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

func reshareTargets(nodes []model.KeyShareNode) []ReshareTarget {
	targets := make([]ReshareTarget, 0, len(nodes))
	for _, n := range nodes {
		targets = append(targets, ReshareTarget{Endpoint: n.ServerURL})
	}
	return targets
}

func TestReshare_UpdatesEdges(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	// A new node joins; the wallet has no edge to it yet.
	added := e.addNodes(t, 1)
	all := append(nodes, added...)

	result, err := e.reshare.Reshare(ctx, testIdentity("a@b.com"), ReshareRequest{
		PublicKey:         wallet.PublicKey,
		ResharedKeyShares: reshareTargets(all),
	})
	require.NoError(t, err)
	assert.Len(t, result.VerifiedNodes, 2)
	assert.Len(t, result.UpdatedNodes, 3)

	edges, err := e.reg.ListWalletNodes(ctx, wallet.WalletID)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
	for _, edge := range edges {
		assert.Equal(t, model.EdgeActive, edge.Status)
	}

	// Both reshare stages completed under one session.
	stages, err := e.sessions.ListStages(ctx, result.SessionID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	for _, stage := range stages {
		assert.Equal(t, model.StageCompleted, stage.StageStatus)
	}
}

func TestReshare_UnknownEndpoint(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	targets := reshareTargets(nodes)
	targets = append(targets, ReshareTarget{Endpoint: "http://unknown.internal"})

	_, err := e.reshare.Reshare(ctx, testIdentity("a@b.com"), ReshareRequest{
		PublicKey:         wallet.PublicKey,
		ResharedKeyShares: targets,
	})
	assert.Equal(t, types.ErrKsNodeNotFound, types.CodeOf(err))
}

func TestReshare_Ownership(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)
	keygenWallet(t, e, "other@b.com", types.CurveEd25519)

	_, err := e.reshare.Reshare(ctx, testIdentity("other@b.com"), ReshareRequest{
		PublicKey:         wallet.PublicKey,
		ResharedKeyShares: reshareTargets(nodes),
	})
	assert.Equal(t, types.ErrUnauthorized, types.CodeOf(err))

	_, err = e.reshare.Reshare(ctx, testIdentity("a@b.com"), ReshareRequest{
		PublicKey:         "ffff",
		ResharedKeyShares: reshareTargets(nodes),
	})
	assert.Equal(t, types.ErrWalletNotFound, types.CodeOf(err))
}

func TestReshare_QuorumVerificationFails(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	// Both nodes report the share missing: a logical failure, not transient.
	e.api.fail[nodes[0].ID] = types.E(types.ErrKeyShareNotFound, "gone")
	e.api.fail[nodes[1].ID] = types.E(types.ErrKeyShareNotFound, "gone")

	_, err := e.reshare.Reshare(ctx, testIdentity("a@b.com"), ReshareRequest{
		PublicKey:         wallet.PublicKey,
		ResharedKeyShares: reshareTargets(nodes),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrWalletNotFound, types.CodeOf(err))

	// No edge was touched and the verify stage is marked failed.
	edges, err := e.reg.ListWalletNodes(ctx, wallet.WalletID)
	require.NoError(t, err)
	for _, edge := range edges {
		assert.Equal(t, model.EdgeActive, edge.Status) // unchanged from keygen
	}
}

func TestReshare_TooFewTargets(t *testing.T) {
	e := newEnv(t, 2)
	nodes := e.addNodes(t, 2)
	ctx := context.Background()
	wallet := keygenWallet(t, e, "a@b.com", types.CurveEd25519)

	_, err := e.reshare.Reshare(ctx, testIdentity("a@b.com"), ReshareRequest{
		PublicKey:         wallet.PublicKey,
		ResharedKeyShares: reshareTargets(nodes[:1]),
	})
	assert.Equal(t, types.ErrKeyshareNodeInsufficient, types.CodeOf(err))
}
