package store

import (
	"context"
	"time"

	"github.com/chainapsis/oko-tss/internal/ksnode/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// Identity is the (auth_type, user_identifier) pair resolved by the identity
// verifier before any store call.
type Identity struct {
	AuthType string
	AuthID   string
}

// Store is the node-local persistence boundary. Every method returns typed
// errors (pkg/types codes); raw driver errors never cross this seam.
//
// Register semantics: the user row is created on first contact, the wallet and
// key-share rows are created together, and the whole sequence is atomic — any
// failure leaves no partial rows behind.
type Store interface {
	// RegisterShare creates user (if absent), wallet and key share in one
	// transaction. Fails DUPLICATE_PUBLIC_KEY when any wallet on this node
	// already uses publicKey, regardless of owner.
	RegisterShare(ctx context.Context, id Identity, curve types.CurveType, publicKey string, encShare []byte) (walletID string, err error)

	// LookupShare resolves the caller's encrypted share. Fails USER_NOT_FOUND,
	// WALLET_NOT_FOUND, UNAUTHORIZED (wallet owned by someone else) or
	// KEY_SHARE_NOT_FOUND.
	LookupShare(ctx context.Context, id Identity, curve types.CurveType, publicKey string) (shareID string, encShare []byte, err error)

	// MarkReshared bumps the reshare timestamp of a share whose content was
	// just verified. Share bytes are never touched.
	MarkReshared(ctx context.Context, shareID string, at time.Time) error

	// WalletExists is the existence probe behind check. Unknown user or wallet
	// reports false without error; a wallet owned by a different user fails
	// PUBLIC_KEY_INVALID.
	WalletExists(ctx context.Context, id Identity, curve types.CurveType, publicKey string) (bool, error)

	// CreateCommitSession persists a new COMMITTED session. Any collision on
	// session id, ephemeral key or token hash fails SESSION_ALREADY_EXISTS.
	CreateCommitSession(ctx context.Context, sess *model.CommitRevealSession) error

	// RevealCommitSession transitions COMMITTED -> REVEALED exactly once.
	// Unknown session fails INVALID_TSS_SESSION; an expired or already
	// revealed one fails COMMIT_REVEAL_EXPIRED.
	RevealCommitSession(ctx context.Context, sessionID string, now time.Time) (*model.CommitRevealSession, error)

	// ExpireCommitSessions sweeps COMMITTED sessions past their deadline into
	// EXPIRED and reports how many were swept.
	ExpireCommitSessions(ctx context.Context, now time.Time) (int, error)

	Close() error
}
