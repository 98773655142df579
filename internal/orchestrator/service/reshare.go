package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/quorum"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// ReshareService repairs a wallet's node membership after data loss on a node
// or after new nodes join the active set.
type ReshareService struct {
	registry  registry.Registry
	sessions  tssstore.Store
	quorum    *quorum.Client
	threshold int
}

func NewReshareService(reg registry.Registry, sessions tssstore.Store, q *quorum.Client, threshold int) *ReshareService {
	return &ReshareService{registry: reg, sessions: sessions, quorum: q, threshold: threshold}
}

// ReshareTarget names one node the client has re-delivered its share to.
type ReshareTarget struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// ReshareRequest asks for the wallet's node edges to be rebuilt over the
// given target set.
type ReshareRequest struct {
	PublicKey         string          `json:"public_key" binding:"required"`
	ResharedKeyShares []ReshareTarget `json:"reshared_key_shares" binding:"required"`
}

// ReshareResult reports the verified quorum and the resulting edge set.
type ReshareResult struct {
	SessionID     string   `json:"session_id"`
	VerifiedNodes []string `json:"verified_nodes"`
	UpdatedNodes  []string `json:"updated_nodes"`
}

// Reshare validates ownership, re-verifies that a threshold of nodes still
// serves consistent shares for the wallet, then upserts ACTIVE edges for the
// target node set.
func (s *ReshareService) Reshare(ctx context.Context, id oauth.Identity, req ReshareRequest) (*ReshareResult, error) {
	user, err := s.registry.FindUserByEmail(ctx, id.Email)
	if err != nil {
		return nil, err
	}
	wallet, err := s.registry.GetWalletByPublicKey(ctx, req.PublicKey)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != user.ID {
		return nil, types.E(types.ErrUnauthorized, "wallet belongs to a different user")
	}
	if wallet.Status != model.StatusActive {
		return nil, types.E(types.ErrBadRequest, "wallet is not active")
	}

	targets, err := s.resolveTargets(ctx, req.ResharedKeyShares)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := s.sessions.CreateSession(ctx, &model.TssSession{SessionID: sessionID, WalletID: wallet.ID}); err != nil {
		return nil, err
	}

	verified, err := s.runKeygenForReshare(ctx, sessionID, id, wallet, targets)
	if err != nil {
		return nil, err
	}
	updated, err := s.updateWalletKSNodesForReshare(ctx, sessionID, wallet.ID, targets)
	if err != nil {
		return nil, err
	}

	return &ReshareResult{SessionID: sessionID, VerifiedNodes: verified, UpdatedNodes: updated}, nil
}

// resolveTargets maps endpoints to known node rows. Any unknown server URL
// fails the whole request.
func (s *ReshareService) resolveTargets(ctx context.Context, targets []ReshareTarget) ([]model.KeyShareNode, error) {
	nodes := make([]model.KeyShareNode, 0, len(targets))
	for _, t := range targets {
		node, err := s.registry.GetNodeByURL(ctx, t.Endpoint)
		if err != nil {
			if types.IsCode(err, types.ErrKsNodeNotFound) {
				return nil, types.E(types.ErrKsNodeNotFound,
					fmt.Sprintf("no registered ks node with endpoint %s", t.Endpoint))
			}
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if len(nodes) < s.threshold {
		return nil, types.E(types.ErrKeyshareNodeInsufficient,
			fmt.Sprintf("reshare targets %d nodes, need %d", len(nodes), s.threshold))
	}
	return nodes, nil
}

// runKeygenForReshare re-verifies share consistency by gathering a threshold
// of shares from the target set through the quorum client.
func (s *ReshareService) runKeygenForReshare(ctx context.Context, sessionID string, id oauth.Identity, wallet *model.Wallet, targets []model.KeyShareNode) ([]string, error) {
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StageReshareVerify); err != nil {
		return nil, err
	}

	req := types.KeyShareGetRequest{
		AuthType:   string(id.AuthType),
		UserAuthID: id.UserIdentifier,
	}
	entry := &types.WalletShare{PublicKey: wallet.PublicKey}
	if wallet.CurveType == string(types.CurveEd25519) {
		req.Wallets.Ed25519 = entry
	} else {
		req.Wallets.Secp256k1 = entry
	}

	quorumNodes := lo.Map(targets, func(n model.KeyShareNode, _ int) quorum.Node {
		return quorum.Node{ID: n.ID, Name: n.Name, Endpoint: n.ServerURL}
	})

	gathered, err := s.quorum.RequestKeyShares(ctx, quorumNodes, s.threshold, req)
	if err != nil {
		if failErr := s.sessions.FailStage(ctx, sessionID, model.StageReshareVerify); failErr != nil {
			logger.Warn("Could not mark reshare verify stage failed",
				"session_id", sessionID, "error", failErr.Error())
		}
		return nil, err
	}

	verified := lo.Map(gathered, func(ns quorum.NodeShares, _ int) string { return ns.Node.Name })
	data, err := json.Marshal(verified)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "marshal verified node list", err)
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StageReshareVerify, data); err != nil {
		return nil, err
	}
	return verified, nil
}

// updateWalletKSNodesForReshare upserts ACTIVE membership edges for every
// target node.
func (s *ReshareService) updateWalletKSNodesForReshare(ctx context.Context, sessionID, walletID string, targets []model.KeyShareNode) ([]string, error) {
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StageReshareUpdate); err != nil {
		return nil, err
	}

	updated := make([]string, 0, len(targets))
	for _, node := range targets {
		if err := s.registry.UpsertWalletNode(ctx, walletID, node.ID, model.EdgeActive); err != nil {
			return nil, err
		}
		updated = append(updated, node.Name)
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "marshal updated node list", err)
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StageReshareUpdate, data); err != nil {
		return nil, err
	}
	return updated, nil
}
