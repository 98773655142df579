// Package service implements the orchestrator's protocol operations on top of
// the registry, the TSS session store and the quorum key-share client.
package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/audit"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/mpc"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/quorum"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// KeygenService runs distributed key generation: it produces the server half
// of a wallet key, derives the combined public key, persists the wallet and
// fans the client's node shares out to the active key-share nodes.
type KeygenService struct {
	registry  registry.Registry
	sessions  tssstore.Store
	gateway   *encryption.Gateway
	quorum    *quorum.Client
	tokens    *auth.TokenService
	audit     audit.Publisher
	threshold int
}

func NewKeygenService(
	reg registry.Registry,
	sessions tssstore.Store,
	gateway *encryption.Gateway,
	q *quorum.Client,
	tokens *auth.TokenService,
	pub audit.Publisher,
	threshold int,
) *KeygenService {
	return &KeygenService{
		registry:  reg,
		sessions:  sessions,
		gateway:   gateway,
		quorum:    q,
		tokens:    tokens,
		audit:     pub,
		threshold: threshold,
	}
}

// KeygenRequest is the client half of a keygen run: the curve, the client's
// verifying share and the share material to park on the key-share nodes.
type KeygenRequest struct {
	CurveType       string `json:"curve_type" binding:"required"`
	ClientPublicKey string `json:"client_public_key" binding:"required"`
	NodeShare       string `json:"node_share" binding:"required"`
}

// KeygenResult is returned to the client after a successful run.
type KeygenResult struct {
	Token           string `json:"token"`
	WalletID        string `json:"wallet_id"`
	PublicKey       string `json:"public_key"`
	SessionID       string `json:"session_id"`
	RegisteredNodes int    `json:"registered_nodes"`
}

// RunKeygen executes one keygen for the verified identity. The wallet row and
// the encrypted server share are created atomically; node registration is
// best-effort afterwards, but fewer than threshold successes fails the run.
func (s *KeygenService) RunKeygen(ctx context.Context, id oauth.Identity, req KeygenRequest) (*KeygenResult, error) {
	curve, err := types.ParseCurveType(req.CurveType)
	if err != nil {
		return nil, err
	}
	clientPub, err := decodePublicKey(curve, req.ClientPublicKey)
	if err != nil {
		return nil, err
	}
	if _, err := hex.DecodeString(req.NodeShare); err != nil {
		return nil, types.E(types.ErrBadRequest, "node share must be hex")
	}

	user, err := s.registry.FindOrCreateUser(ctx, id.Email, string(id.AuthType), id.UserIdentifier)
	if err != nil {
		return nil, err
	}

	if existing, err := s.registry.GetActiveWalletByUserAndCurve(ctx, user.ID, string(curve)); err == nil && existing != nil {
		return nil, types.E(types.ErrWalletAlreadyExists,
			fmt.Sprintf("user already has an active %s wallet", curve))
	} else if err != nil && !types.IsCode(err, types.ErrWalletNotFound) {
		return nil, err
	}

	signing, verifying, err := generateServerShare(curve)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "generate server share", err)
	}
	groupPub, err := combinePublicKeys(curve, clientPub, verifying)
	if err != nil {
		return nil, types.WrapE(types.ErrPublicKeyInvalid, "combine public keys", err)
	}
	groupPubHex := hex.EncodeToString(groupPub)

	if other, err := s.registry.GetWalletByPublicKey(ctx, groupPubHex); err == nil && other != nil && other.UserID != user.ID {
		return nil, types.E(types.ErrDuplicatePublicKey, "public key already registered to another user")
	}

	encSigning, err := s.gateway.Encrypt(signing)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "encrypt signing share", err)
	}
	encVerifying, err := s.gateway.Encrypt(verifying)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "encrypt verifying share", err)
	}

	wallet := &model.Wallet{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		CurveType:    string(curve),
		PublicKey:    groupPubHex,
		Status:       model.StatusActive,
		SSSThreshold: s.threshold,
	}
	share := &model.ServerShare{
		ID:                uuid.NewString(),
		WalletID:          wallet.ID,
		EncSigningShare:   encSigning,
		EncVerifyingShare: encVerifying,
	}
	if err := s.registry.CreateWalletWithShare(ctx, wallet, share); err != nil {
		return nil, err
	}
	s.publishAudit(ctx, "wallet", wallet.ID, "created", audit.Diff(nil, wallet.Fields()))

	registered, err := s.registerOnNodes(ctx, id, curve, groupPubHex, req.NodeShare, wallet.ID)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := s.sessions.CreateSession(ctx, &model.TssSession{SessionID: sessionID, WalletID: wallet.ID}); err != nil {
		return nil, err
	}
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StageKeygen); err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StageKeygen, []byte(groupPubHex)); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email, wallet.ID)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "issue session token", err)
	}

	return &KeygenResult{
		Token:           token,
		WalletID:        wallet.ID,
		PublicKey:       groupPubHex,
		SessionID:       sessionID,
		RegisteredNodes: registered,
	}, nil
}

// registerOnNodes fans the client's node share out to every ACTIVE key-share
// node and records a membership edge per outcome. At least threshold nodes
// must accept the share.
func (s *KeygenService) registerOnNodes(ctx context.Context, id oauth.Identity, curve types.CurveType, publicKey, nodeShare, walletID string) (int, error) {
	nodes, err := s.registry.ListActiveNodes(ctx)
	if err != nil {
		return 0, err
	}
	if len(nodes) == 0 {
		return 0, types.E(types.ErrKeyshareNodeInsufficient, "no active ks nodes")
	}

	req := types.KeyShareRegisterRequest{
		AuthType:   string(id.AuthType),
		UserAuthID: id.UserIdentifier,
	}
	wallets := types.CurveWallets{}
	entry := &types.WalletShare{PublicKey: publicKey, Share: nodeShare}
	if curve == types.CurveEd25519 {
		wallets.Ed25519 = entry
	} else {
		wallets.Secp256k1 = entry
	}
	req.Wallets = wallets

	registered := 0
	for _, node := range nodes {
		qn := quorum.Node{ID: node.ID, Name: node.Name, Endpoint: node.ServerURL}
		edgeStatus := model.EdgeActive
		if err := s.quorum.RegisterKeyShares(ctx, qn, req); err != nil {
			logger.Warn("Key share registration failed on node",
				"node", node.Name, "wallet_id", walletID, "error", err.Error())
			edgeStatus = model.EdgeNotRegistered
		} else {
			registered++
		}
		if err := s.registry.UpsertWalletNode(ctx, walletID, node.ID, edgeStatus); err != nil {
			return registered, err
		}
	}

	if registered < s.threshold {
		return registered, types.E(types.ErrKeyshareNodeInsufficient,
			fmt.Sprintf("key share registered on %d nodes, need %d", registered, s.threshold))
	}
	return registered, nil
}

func (s *KeygenService) publishAudit(ctx context.Context, entity, entityID, action string, diff map[string]any) {
	rec := audit.NewRecord(entity, entityID, action, diff)
	if err := s.audit.Publish(ctx, rec); err != nil {
		logger.Warn("Audit publish failed", "entity", entity, "action", action, "error", err.Error())
	}
}

func decodePublicKey(curve types.CurveType, pubKeyHex string) ([]byte, error) {
	switch curve {
	case types.CurveEd25519:
		pub, err := encryption.ParseEd25519PublicKeyFromHex(pubKeyHex)
		if err != nil {
			return nil, types.WrapE(types.ErrPublicKeyInvalid, "invalid ed25519 public key", err)
		}
		return pub, nil
	case types.CurveSecp256k1:
		pub, err := encryption.ParseSecp256k1PublicKeyFromHex(pubKeyHex)
		if err != nil {
			return nil, types.WrapE(types.ErrPublicKeyInvalid, "invalid secp256k1 public key", err)
		}
		return pub.SerializeCompressed(), nil
	default:
		return nil, types.E(types.ErrCurveTypeNotSupported, fmt.Sprintf("unsupported curve type %q", curve))
	}
}

func generateServerShare(curve types.CurveType) (signing, verifying []byte, err error) {
	if curve == types.CurveEd25519 {
		return mpc.GenerateEd25519Share()
	}
	return mpc.GenerateSecp256k1Share()
}

func combinePublicKeys(curve types.CurveType, clientPub, serverPub []byte) ([]byte, error) {
	if curve == types.CurveEd25519 {
		return mpc.CombineEd25519PublicKeys(clientPub, serverPub)
	}
	return mpc.CombineSecp256k1PublicKeys(clientPub, serverPub)
}
