// Package registry persists the orchestrator's wallets, key-share nodes,
// membership edges and server-held shares.
package registry

import (
	"context"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
)

// Registry is the storage boundary of the wallet/node registry. All methods
// return typed errors; idempotency policy (already-active and friends) sits in
// the services above this interface.
type Registry interface {
	// Users
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindOrCreateUser(ctx context.Context, email, authType, authID string) (*model.User, error)

	// Wallets. CreateWalletWithShare is atomic and enforces both uniqueness
	// rules: one ACTIVE wallet per (user, curve) -> WALLET_ALREADY_EXISTS,
	// globally unique public key -> DUPLICATE_PUBLIC_KEY.
	CreateWalletWithShare(ctx context.Context, wallet *model.Wallet, share *model.ServerShare) error
	GetWallet(ctx context.Context, walletID string) (*model.Wallet, error)
	GetActiveWalletByUserAndCurve(ctx context.Context, userID, curveType string) (*model.Wallet, error)
	GetWalletByPublicKey(ctx context.Context, publicKey string) (*model.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID string) ([]model.Wallet, error)
	SetWalletStatus(ctx context.Context, walletID, status string) error
	GetServerShare(ctx context.Context, walletID string) (*model.ServerShare, error)

	// Key-share nodes. Deletion is soft; deleted nodes stop resolving.
	CreateNode(ctx context.Context, node *model.KeyShareNode) error
	GetNode(ctx context.Context, nodeID string) (*model.KeyShareNode, error)
	GetNodeByURL(ctx context.Context, serverURL string) (*model.KeyShareNode, error)
	ListNodes(ctx context.Context) ([]model.KeyShareNode, error)
	ListActiveNodes(ctx context.Context) ([]model.KeyShareNode, error)
	SetNodeStatus(ctx context.Context, nodeID, status string) error
	SoftDeleteNode(ctx context.Context, nodeID string) error

	// Membership edges
	UpsertWalletNode(ctx context.Context, walletID, nodeID, status string) error
	ListWalletNodes(ctx context.Context, walletID string) ([]model.WalletKSNode, error)

	// Health probes
	RecordHealthCheck(ctx context.Context, nodeID string, healthy bool) error
}
