package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/pkg/audit"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// NodeAdminService manages the key-share node roster. Every mutation emits an
// audit record carrying before/after field diffs.
type NodeAdminService struct {
	registry registry.Registry
	audit    audit.Publisher
}

func NewNodeAdminService(reg registry.Registry, pub audit.Publisher) *NodeAdminService {
	return &NodeAdminService{registry: reg, audit: pub}
}

// CreateNodeRequest registers a new key-share node.
type CreateNodeRequest struct {
	Name      string `json:"name" binding:"required"`
	ServerURL string `json:"server_url" binding:"required"`
}

func (s *NodeAdminService) CreateNode(ctx context.Context, req CreateNodeRequest) (*model.KeyShareNode, error) {
	node := &model.KeyShareNode{
		ID:        uuid.NewString(),
		Name:      req.Name,
		ServerURL: req.ServerURL,
		Status:    model.StatusActive,
	}
	if err := s.registry.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	s.publishAudit(ctx, node.ID, "created", audit.Diff(nil, node.Fields()))
	return node, nil
}

// ActivateNode moves a node to ACTIVE. Activating an already active node is a
// caller mistake worth surfacing, not a silent no-op.
func (s *NodeAdminService) ActivateNode(ctx context.Context, nodeID string) error {
	return s.setStatus(ctx, nodeID, model.StatusActive, types.ErrKsNodeAlreadyActive)
}

// DeactivateNode moves a node to INACTIVE, removing it from quorum selection.
func (s *NodeAdminService) DeactivateNode(ctx context.Context, nodeID string) error {
	return s.setStatus(ctx, nodeID, model.StatusInactive, types.ErrKsNodeAlreadyInactive)
}

func (s *NodeAdminService) setStatus(ctx context.Context, nodeID, status string, alreadyCode types.ErrorCode) error {
	node, err := s.registry.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.Status == status {
		return types.E(alreadyCode, "node is already "+status)
	}

	before := node.Fields()
	if err := s.registry.SetNodeStatus(ctx, nodeID, status); err != nil {
		return err
	}
	node.Status = status
	s.publishAudit(ctx, nodeID, "status_changed", audit.Diff(before, node.Fields()))
	return nil
}

// DeleteNode soft-deletes a node. A second delete reports
// KS_NODE_ALREADY_DELETED rather than succeeding silently.
func (s *NodeAdminService) DeleteNode(ctx context.Context, nodeID string) error {
	node, err := s.registry.GetNode(ctx, nodeID)
	if err != nil && !types.IsCode(err, types.ErrKsNodeNotFound) {
		return err
	}
	if err := s.registry.SoftDeleteNode(ctx, nodeID); err != nil {
		return err
	}
	if node != nil {
		s.publishAudit(ctx, nodeID, "deleted", audit.Diff(node.Fields(), nil))
	}
	return nil
}

func (s *NodeAdminService) ListNodes(ctx context.Context) ([]model.KeyShareNode, error) {
	return s.registry.ListNodes(ctx)
}

func (s *NodeAdminService) publishAudit(ctx context.Context, nodeID, action string, diff map[string]any) {
	rec := audit.NewRecord("ks_node", nodeID, action, diff)
	if err := s.audit.Publish(ctx, rec); err != nil {
		logger.Warn("Audit publish failed", "entity", "ks_node", "action", action, "error", err.Error())
	}
}
