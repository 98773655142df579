package service

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/mpc"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// serverIdentifier is the server's fixed participant index in the two-party
// protocol; the client is participant 2.
const serverIdentifier = 1

// PresignService runs the server side of the presign rounds. All inter-round
// state is parked encrypted in the stage store, so any process can serve any
// round.
type PresignService struct {
	registry registry.Registry
	sessions tssstore.Store
	gateway  *encryption.Gateway
}

func NewPresignService(reg registry.Registry, sessions tssstore.Store, gateway *encryption.Gateway) *PresignService {
	return &PresignService{registry: reg, sessions: sessions, gateway: gateway}
}

// PresignEd25519Result carries the server's round-1 commitments back to the
// client for aggregation.
type PresignEd25519Result struct {
	SessionID         string `json:"session_id"`
	Identifier        uint16 `json:"identifier"`
	HidingCommitment  string `json:"hiding_commitment"`
	BindingCommitment string `json:"binding_commitment"`
}

// ed25519StageData is the persisted round-1 output. The nonce halves are
// secret and stored encrypted.
type ed25519StageData struct {
	Identifier  uint16                 `json:"identifier"`
	EncNonces   []byte                 `json:"enc_nonces"`
	Commitments mpc.Ed25519Commitments `json:"commitments"`
}

// RunPresignEd25519 authorizes the caller against the wallet, reconstructs
// the key package from the two stored scalars, runs round 1 and parks the
// output. Every call creates a fresh session; a pending sign stage is opened
// so the session stays abortable until the signature round consumes it.
func (s *PresignService) RunPresignEd25519(ctx context.Context, email, walletID string) (*PresignEd25519Result, error) {
	wallet, err := s.authorizeWallet(ctx, email, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.CurveType != string(types.CurveEd25519) {
		return nil, types.E(types.ErrInvalidWalletType, "wallet is not an ed25519 wallet")
	}

	signing, verifying, err := s.decryptServerShare(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	groupPub, err := hex.DecodeString(wallet.PublicKey)
	if err != nil {
		return nil, types.WrapE(types.ErrPublicKeyInvalid, "stored wallet public key is not hex", err)
	}
	kp, err := mpc.ReconstructEd25519KeyPackage(serverIdentifier, signing, verifying, groupPub)
	if err != nil {
		return nil, types.WrapE(types.ErrKeyShareNotFound, "key package reconstruction failed", err)
	}

	nonces, commitments, err := kp.Round1()
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "presign round 1", err)
	}

	sessionID := uuid.NewString()
	if err := s.sessions.CreateSession(ctx, &model.TssSession{SessionID: sessionID, WalletID: wallet.ID}); err != nil {
		return nil, err
	}

	stageData, err := s.sealStageData(nonces, commitments)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StagePresignEd25519); err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StagePresignEd25519, stageData); err != nil {
		return nil, err
	}
	// The sign round consumes this stage; until then the session is abortable.
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StageSignEd25519); err != nil {
		return nil, err
	}

	return &PresignEd25519Result{
		SessionID:         sessionID,
		Identifier:        commitments.Identifier,
		HidingCommitment:  hex.EncodeToString(commitments.HidingCommitment),
		BindingCommitment: hex.EncodeToString(commitments.BindingCommitment),
	}, nil
}

// AbortSession aborts a session's pending stage. Only PENDING stages abort;
// a session with nothing pending reports INVALID_TSS_SESSION.
func (s *PresignService) AbortSession(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.AbortPendingStages(ctx, sessionID)
}

// PresignStep1Result is the server's ECDSA round-1 commitments.
type PresignStep1Result struct {
	SessionID       string `json:"session_id"`
	KCommitment     string `json:"k_commitment"`
	GammaCommitment string `json:"gamma_commitment"`
}

// PresignStep1 opens an ECDSA presign session and returns the server's
// nonce commitments. The stored key-share pair is verified first, the same
// tamper rejection the ed25519 reconstruction applies; the secret nonces are
// parked encrypted in the stage.
func (s *PresignService) PresignStep1(ctx context.Context, email, walletID string) (*PresignStep1Result, error) {
	wallet, err := s.authorizeWallet(ctx, email, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.CurveType != string(types.CurveSecp256k1) {
		return nil, types.E(types.ErrInvalidWalletType, "wallet is not a secp256k1 wallet")
	}

	signing, verifying, err := s.decryptServerShare(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	derived, err := mpc.DeriveSecp256k1VerifyingShare(signing)
	if err != nil {
		return nil, types.WrapE(types.ErrKeyShareNotFound, "stored signing share is invalid", err)
	}
	if !encryption.VerifyShare(verifying, derived) {
		return nil, types.E(types.ErrKeyShareNotFound, "stored verifying share does not match signing share")
	}

	round1, err := mpc.EcdsaPresignStep1()
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "presign step 1", err)
	}

	sessionID := uuid.NewString()
	if err := s.sessions.CreateSession(ctx, &model.TssSession{SessionID: sessionID, WalletID: wallet.ID}); err != nil {
		return nil, err
	}
	data, err := s.sealJSON(round1)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StagePresignStep1); err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StagePresignStep1, data); err != nil {
		return nil, err
	}
	// Step 2 is opened pending so the session stays abortable between steps.
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StagePresignStep2); err != nil {
		return nil, err
	}

	return &PresignStep1Result{
		SessionID:       sessionID,
		KCommitment:     hex.EncodeToString(round1.KCommitment),
		GammaCommitment: hex.EncodeToString(round1.GammaCommitment),
	}, nil
}

// PresignStep2Request carries the client's round-1 commitments plus its
// opaque protocol payload.
type PresignStep2Request struct {
	SessionID             string `json:"session_id" binding:"required"`
	ClientKCommitment     string `json:"client_k_commitment" binding:"required"`
	ClientGammaCommitment string `json:"client_gamma_commitment" binding:"required"`
	ClientPayload         string `json:"client_payload,omitempty"`
}

// PresignStep2Result returns the combined round points.
type PresignStep2Result struct {
	BigR     string `json:"big_r"`
	BigGamma string `json:"big_gamma"`
}

// PresignStep2 combines the client's commitments with the parked round-1
// state. Replaying a step for a session that already ran it is rejected by
// the stage store.
func (s *PresignService) PresignStep2(ctx context.Context, email string, req PresignStep2Request) (*PresignStep2Result, error) {
	if _, err := s.authorizeSession(ctx, email, req.SessionID); err != nil {
		return nil, err
	}

	var round1 mpc.EcdsaRound1
	if err := s.openStageJSON(ctx, req.SessionID, model.StagePresignStep1, &round1); err != nil {
		return nil, err
	}

	clientK, err := hex.DecodeString(req.ClientKCommitment)
	if err != nil {
		return nil, types.E(types.ErrBadRequest, "client k commitment must be hex")
	}
	clientGamma, err := hex.DecodeString(req.ClientGammaCommitment)
	if err != nil {
		return nil, types.E(types.ErrBadRequest, "client gamma commitment must be hex")
	}
	payload, err := hex.DecodeString(req.ClientPayload)
	if err != nil {
		return nil, types.E(types.ErrBadRequest, "client payload must be hex")
	}

	round2, err := mpc.EcdsaPresignStep2(&round1, clientK, clientGamma, payload)
	if err != nil {
		return nil, types.WrapE(types.ErrBadRequest, "presign step 2", err)
	}

	data, err := s.sealJSON(round2)
	if err != nil {
		return nil, err
	}
	// Completing the pending step-2 stage is the replay guard: a second call
	// finds it already COMPLETED and fails.
	if err := s.sessions.CompleteStage(ctx, req.SessionID, model.StagePresignStep2, data); err != nil {
		return nil, err
	}
	if _, err := s.sessions.OpenStage(ctx, req.SessionID, model.StagePresignStep3); err != nil {
		return nil, err
	}

	return &PresignStep2Result{
		BigR:     hex.EncodeToString(round2.BigR),
		BigGamma: hex.EncodeToString(round2.BigGamma),
	}, nil
}

// PresignStep3Result seals the presign; Digest binds both sides' material.
type PresignStep3Result struct {
	SessionID string `json:"session_id"`
	BigR      string `json:"big_r"`
	Digest    string `json:"digest"`
}

// PresignStep3 finishes the ECDSA presign and opens the pending sign stage.
func (s *PresignService) PresignStep3(ctx context.Context, email, sessionID string) (*PresignStep3Result, error) {
	if _, err := s.authorizeSession(ctx, email, sessionID); err != nil {
		return nil, err
	}

	var round1 mpc.EcdsaRound1
	if err := s.openStageJSON(ctx, sessionID, model.StagePresignStep1, &round1); err != nil {
		return nil, err
	}
	var round2 mpc.EcdsaRound2
	if err := s.openStageJSON(ctx, sessionID, model.StagePresignStep2, &round2); err != nil {
		return nil, err
	}

	record := mpc.EcdsaPresignStep3(sessionID, &round1, &round2)
	data, err := s.sealJSON(record)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteStage(ctx, sessionID, model.StagePresignStep3, data); err != nil {
		return nil, err
	}
	if _, err := s.sessions.OpenStage(ctx, sessionID, model.StageSignEcdsa); err != nil {
		return nil, err
	}

	return &PresignStep3Result{
		SessionID: sessionID,
		BigR:      hex.EncodeToString(record.BigR),
		Digest:    hex.EncodeToString(record.Digest),
	}, nil
}

func (s *PresignService) authorizeWallet(ctx context.Context, email, walletID string) (*model.Wallet, error) {
	user, err := s.registry.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	wallet, err := s.registry.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != user.ID {
		return nil, types.E(types.ErrUnauthorized, "wallet belongs to a different user")
	}
	return wallet, nil
}

func (s *PresignService) authorizeSession(ctx context.Context, email, sessionID string) (*model.TssSession, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeWallet(ctx, email, sess.WalletID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PresignService) decryptServerShare(ctx context.Context, walletID string) (signing, verifying []byte, err error) {
	share, err := s.registry.GetServerShare(ctx, walletID)
	if err != nil {
		return nil, nil, err
	}
	signing, err = s.gateway.Decrypt(share.EncSigningShare)
	if err != nil {
		return nil, nil, types.WrapE(types.ErrKeyShareNotFound, "decrypt signing share", err)
	}
	verifying, err = s.gateway.Decrypt(share.EncVerifyingShare)
	if err != nil {
		return nil, nil, types.WrapE(types.ErrKeyShareNotFound, "decrypt verifying share", err)
	}
	return signing, verifying, nil
}

func (s *PresignService) sealStageData(nonces *mpc.Ed25519Nonces, commitments *mpc.Ed25519Commitments) ([]byte, error) {
	plainNonces, err := json.Marshal(nonces)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "marshal nonces", err)
	}
	encNonces, err := s.gateway.Encrypt(plainNonces)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "encrypt nonces", err)
	}
	data, err := json.Marshal(ed25519StageData{
		Identifier:  commitments.Identifier,
		EncNonces:   encNonces,
		Commitments: *commitments,
	})
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "marshal stage data", err)
	}
	return data, nil
}

// sealJSON encrypts a round payload whole before it enters the stage store.
func (s *PresignService) sealJSON(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "marshal stage payload", err)
	}
	sealed, err := s.gateway.Encrypt(plain)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "encrypt stage payload", err)
	}
	return sealed, nil
}

// openStageJSON loads a COMPLETED stage's sealed payload.
func (s *PresignService) openStageJSON(ctx context.Context, sessionID, stageType string, out any) error {
	stage, err := s.sessions.GetStage(ctx, sessionID, stageType)
	if err != nil {
		return err
	}
	if stage.StageStatus != model.StageCompleted {
		return types.E(types.ErrInvalidTssStage, "prior round has not completed")
	}
	plain, err := s.gateway.Decrypt(stage.StageData)
	if err != nil {
		return types.WrapE(types.ErrInvalidTssStage, "open stage payload", err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return types.WrapE(types.ErrInvalidTssStage, "decode stage payload", err)
	}
	return nil
}
