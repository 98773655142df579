package service

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/chainapsis/oko-tss/internal/ksnode/identity"
	"github.com/chainapsis/oko-tss/internal/ksnode/model"
	"github.com/chainapsis/oko-tss/internal/ksnode/store"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// CommitRevealService opens and closes the anti-replay sessions that gate
// high-sensitivity node operations.
type CommitRevealService struct {
	store  store.Store
	signer *identity.Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewCommitRevealService(st store.Store, signer *identity.Signer, ttl time.Duration) *CommitRevealService {
	return &CommitRevealService{store: st, signer: signer, ttl: ttl, now: time.Now}
}

// Commit validates the one-time credential, persists the COMMITTED session and
// returns the node's signature over session_id || ephemeral_pubkey || hash so
// the client can later prove what this node committed to.
func (s *CommitRevealService) Commit(ctx context.Context, req types.CommitRequest) (*types.CommitResponse, error) {
	if !model.ValidOperationType(req.OperationType) {
		return nil, types.E(types.ErrBadRequest, "unknown operation type")
	}
	ephKey, err := encryption.Decode32ByteHex(req.ClientEphemeralKey)
	if err != nil {
		return nil, types.WrapE(types.ErrBadRequest, "client_ephemeral_pubkey must be 32 bytes of hex", err)
	}
	tokenHash, err := encryption.Decode32ByteHex(req.IDTokenHash)
	if err != nil {
		return nil, types.WrapE(types.ErrBadRequest, "id_token_hash must be 32 bytes of hex", err)
	}

	now := s.now().UTC()
	sess := &model.CommitRevealSession{
		SessionID:          req.SessionID,
		OperationType:      req.OperationType,
		ClientEphemeralKey: req.ClientEphemeralKey,
		IDTokenHash:        req.IDTokenHash,
		State:              model.SessionCommitted,
		ExpiresAt:          now.Add(s.ttl),
		CreatedAt:          now,
	}
	if err := s.store.CreateCommitSession(ctx, sess); err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(req.SessionID)+len(ephKey)+len(tokenHash))
	payload = append(payload, []byte(req.SessionID)...)
	payload = append(payload, ephKey...)
	payload = append(payload, tokenHash...)
	sig := s.signer.Sign(payload)

	logger.Info("Commit-reveal session opened",
		"session_id", req.SessionID, "operation", req.OperationType)

	return &types.CommitResponse{
		NodePubKey:    s.signer.PublicKeyHex(),
		NodeSignature: hex.EncodeToString(sig),
	}, nil
}

// Reveal consumes a COMMITTED session exactly once.
func (s *CommitRevealService) Reveal(ctx context.Context, sessionID string) (*model.CommitRevealSession, error) {
	return s.store.RevealCommitSession(ctx, sessionID, s.now().UTC())
}

// StartSweeper expires overdue COMMITTED sessions on a fixed period until ctx
// is cancelled.
func (s *CommitRevealService) StartSweeper(ctx context.Context, period time.Duration) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := s.store.ExpireCommitSessions(ctx, s.now().UTC())
				if err != nil {
					logger.Error("Commit-reveal sweep failed", err)
					continue
				}
				if swept > 0 {
					logger.Info("Expired commit-reveal sessions", "count", swept)
				}
			}
		}
	}()
}
