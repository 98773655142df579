// Package service implements the key-share node operations on top of the node
// store and the encryption gateway. All methods return typed errors.
package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chainapsis/oko-tss/internal/ksnode/store"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// KeyShareService owns register/get/reshare/check, per curve (v1) and batched
// over the curve object (v2).
type KeyShareService struct {
	store   store.Store
	gateway *encryption.Gateway
}

func NewKeyShareService(st store.Store, gw *encryption.Gateway) *KeyShareService {
	return &KeyShareService{store: st, gateway: gw}
}

// Register encrypts the share and creates user, wallet and key-share rows
// atomically.
func (s *KeyShareService) Register(ctx context.Context, id store.Identity, curve types.CurveType, publicKey, shareHex string) (*types.RegisterResult, error) {
	if err := validatePublicKey(curve, publicKey); err != nil {
		return nil, err
	}
	share, err := decodeShare(shareHex)
	if err != nil {
		return nil, err
	}

	encShare, err := s.gateway.Encrypt(share)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "encrypt key share", err)
	}

	walletID, err := s.store.RegisterShare(ctx, id, curve, publicKey, encShare)
	if err != nil {
		return nil, err
	}

	logger.Info("Registered key share", "curve", string(curve), "wallet_id", walletID)
	return &types.RegisterResult{WalletID: walletID}, nil
}

// Get resolves and decrypts the caller's share for one curve.
func (s *KeyShareService) Get(ctx context.Context, id store.Identity, curve types.CurveType, publicKey string) (*types.ShareResult, error) {
	if err := validatePublicKey(curve, publicKey); err != nil {
		return nil, err
	}

	shareID, encShare, err := s.store.LookupShare(ctx, id, curve, publicKey)
	if err != nil {
		return nil, err
	}

	share, err := s.gateway.Decrypt(encShare)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "decrypt key share", err)
	}

	return &types.ShareResult{ShareID: shareID, Share: hex.EncodeToString(share)}, nil
}

// Reshare verifies that the provided share matches the stored one and bumps
// the reshare timestamp. The comparison is constant-time so response latency
// carries no information about where a forged share diverges.
func (s *KeyShareService) Reshare(ctx context.Context, id store.Identity, curve types.CurveType, publicKey, shareHex string) error {
	if err := validatePublicKey(curve, publicKey); err != nil {
		return err
	}
	provided, err := decodeShare(shareHex)
	if err != nil {
		return err
	}

	shareID, encShare, err := s.store.LookupShare(ctx, id, curve, publicKey)
	if err != nil {
		return err
	}

	stored, err := s.gateway.Decrypt(encShare)
	if err != nil {
		return types.WrapE(types.ErrUnknown, "decrypt key share", err)
	}

	if !encryption.VerifyShare(stored, provided) {
		return types.E(types.ErrReshareFailed, "provided share does not match stored share")
	}

	return s.store.MarkReshared(ctx, shareID, time.Now().UTC())
}

// Check is the existence probe. Unknown user or wallet reports exists=false;
// a public key owned by someone else fails PUBLIC_KEY_INVALID.
func (s *KeyShareService) Check(ctx context.Context, id store.Identity, curve types.CurveType, publicKey string) (*types.CheckResult, error) {
	if err := validatePublicKey(curve, publicKey); err != nil {
		return nil, err
	}

	exists, err := s.store.WalletExists(ctx, id, curve, publicKey)
	if err != nil {
		return nil, err
	}
	return &types.CheckResult{Exists: exists}, nil
}

// RegisterV2 registers one share per requested curve, short-circuiting on the
// first per-curve failure.
func (s *KeyShareService) RegisterV2(ctx context.Context, req types.KeyShareRegisterRequest) (types.CurveRegistrations, error) {
	var out types.CurveRegistrations
	if req.Wallets.IsEmpty() {
		return out, types.E(types.ErrBadRequest, "at least one curve entry is required")
	}

	err := req.Wallets.ForEach(func(curve types.CurveType, ws types.WalletShare) error {
		res, err := s.Register(ctx, identityOf(req.AuthType, req.UserAuthID), curve, ws.PublicKey, ws.Share)
		if err != nil {
			return err
		}
		out.Set(curve, *res)
		return nil
	})
	return out, err
}

// GetV2 resolves all requested curves, short-circuiting on the first failure.
func (s *KeyShareService) GetV2(ctx context.Context, req types.KeyShareGetRequest) (types.CurveShares, error) {
	var out types.CurveShares
	if req.Wallets.IsEmpty() {
		return out, types.E(types.ErrBadRequest, "at least one curve entry is required")
	}

	err := req.Wallets.ForEach(func(curve types.CurveType, ws types.WalletShare) error {
		res, err := s.Get(ctx, identityOf(req.AuthType, req.UserAuthID), curve, ws.PublicKey)
		if err != nil {
			return err
		}
		out.Set(curve, *res)
		return nil
	})
	return out, err
}

// ReshareV2 verifies all requested curves, short-circuiting on the first
// failure.
func (s *KeyShareService) ReshareV2(ctx context.Context, req types.KeyShareRegisterRequest) error {
	if req.Wallets.IsEmpty() {
		return types.E(types.ErrBadRequest, "at least one curve entry is required")
	}
	return req.Wallets.ForEach(func(curve types.CurveType, ws types.WalletShare) error {
		return s.Reshare(ctx, identityOf(req.AuthType, req.UserAuthID), curve, ws.PublicKey, ws.Share)
	})
}

// CheckV2 probes all requested curves. Pure non-existence never short-circuits
// the batch; only integrity failures do.
func (s *KeyShareService) CheckV2(ctx context.Context, req types.KeyShareGetRequest) (types.CurveChecks, error) {
	var out types.CurveChecks
	if req.Wallets.IsEmpty() {
		return out, types.E(types.ErrBadRequest, "at least one curve entry is required")
	}

	err := req.Wallets.ForEach(func(curve types.CurveType, ws types.WalletShare) error {
		res, err := s.Check(ctx, identityOf(req.AuthType, req.UserAuthID), curve, ws.PublicKey)
		if err != nil {
			return err
		}
		out.Set(curve, *res)
		return nil
	})
	return out, err
}

func identityOf(authType, authID string) store.Identity {
	return store.Identity{AuthType: authType, AuthID: authID}
}

func validatePublicKey(curve types.CurveType, publicKey string) error {
	switch curve {
	case types.CurveSecp256k1:
		if _, err := encryption.ParseSecp256k1PublicKeyFromHex(publicKey); err != nil {
			return types.WrapE(types.ErrPublicKeyInvalid, "invalid secp256k1 public key", err)
		}
	case types.CurveEd25519:
		if _, err := encryption.ParseEd25519PublicKeyFromHex(publicKey); err != nil {
			return types.WrapE(types.ErrPublicKeyInvalid, "invalid ed25519 public key", err)
		}
	default:
		return types.E(types.ErrCurveTypeNotSupported, fmt.Sprintf("unsupported curve type %q", curve))
	}
	return nil
}

func decodeShare(shareHex string) ([]byte, error) {
	if shareHex == "" {
		return nil, types.E(types.ErrBadRequest, "share is required")
	}
	share, err := hex.DecodeString(shareHex)
	if err != nil {
		return nil, types.WrapE(types.ErrBadRequest, "share must be hex", err)
	}
	return share, nil
}
