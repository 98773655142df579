package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

func TestNodeAdmin_Lifecycle(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	node, err := e.admin.CreateNode(ctx, CreateNodeRequest{Name: "ksn-1", ServerURL: "http://ksn-1.internal"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, node.Status)

	// Activating an active node is a caller mistake.
	err = e.admin.ActivateNode(ctx, node.ID)
	assert.Equal(t, types.ErrKsNodeAlreadyActive, types.CodeOf(err))

	require.NoError(t, e.admin.DeactivateNode(ctx, node.ID))
	err = e.admin.DeactivateNode(ctx, node.ID)
	assert.Equal(t, types.ErrKsNodeAlreadyInactive, types.CodeOf(err))

	require.NoError(t, e.admin.ActivateNode(ctx, node.ID))

	// Inactive nodes drop out of quorum selection.
	require.NoError(t, e.admin.DeactivateNode(ctx, node.ID))
	active, err := e.reg.ListActiveNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNodeAdmin_SoftDelete(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	node, err := e.admin.CreateNode(ctx, CreateNodeRequest{Name: "ksn-1", ServerURL: "http://ksn-1.internal"})
	require.NoError(t, err)

	require.NoError(t, e.admin.DeleteNode(ctx, node.ID))

	// Deleted nodes stop resolving.
	_, err = e.reg.GetNode(ctx, node.ID)
	assert.Equal(t, types.ErrKsNodeNotFound, types.CodeOf(err))

	// A second delete is an error, not a silent success.
	err = e.admin.DeleteNode(ctx, node.ID)
	assert.Equal(t, types.ErrKsNodeAlreadyDeleted, types.CodeOf(err))

	err = e.admin.DeleteNode(ctx, "no-such-node")
	assert.Equal(t, types.ErrKsNodeNotFound, types.CodeOf(err))
}

func TestNodeAdmin_UnknownNode(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	err := e.admin.ActivateNode(ctx, "no-such-node")
	assert.Equal(t, types.ErrKsNodeNotFound, types.CodeOf(err))
}
