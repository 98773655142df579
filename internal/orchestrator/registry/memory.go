package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// MemoryRegistry is an in-memory Registry for tests.
type MemoryRegistry struct {
	mu           sync.Mutex
	users        map[string]*model.User // by id
	wallets      map[string]*model.Wallet
	shares       map[string]*model.ServerShare // by wallet id
	nodes        map[string]*model.KeyShareNode
	edges        map[string]*model.WalletKSNode // by wallet_id+"/"+node_id
	healthChecks []model.KsNodeHealthCheck
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users:   make(map[string]*model.User),
		wallets: make(map[string]*model.Wallet),
		shares:  make(map[string]*model.ServerShare),
		nodes:   make(map[string]*model.KeyShareNode),
		edges:   make(map[string]*model.WalletKSNode),
	}
}

func (r *MemoryRegistry) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, types.E(types.ErrUserNotFound, "no user with that email")
}

func (r *MemoryRegistry) FindOrCreateUser(_ context.Context, email, authType, authID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	u := &model.User{ID: uuid.NewString(), Email: email, AuthType: authType, AuthID: authID, CreatedAt: time.Now().UTC()}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *MemoryRegistry) CreateWalletWithShare(_ context.Context, wallet *model.Wallet, share *model.ServerShare) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == wallet.UserID && w.CurveType == wallet.CurveType && w.Status == model.StatusActive {
			return types.E(types.ErrWalletAlreadyExists, "user already has an active wallet for this curve")
		}
	}
	for _, w := range r.wallets {
		if w.PublicKey == wallet.PublicKey {
			return types.E(types.ErrDuplicatePublicKey, "public key already in use")
		}
	}
	wcp := *wallet
	scp := *share
	r.wallets[wallet.ID] = &wcp
	r.shares[share.WalletID] = &scp
	return nil
}

func (r *MemoryRegistry) GetWallet(_ context.Context, walletID string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, types.E(types.ErrWalletNotFound, "no wallet with that id")
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryRegistry) GetActiveWalletByUserAndCurve(_ context.Context, userID, curveType string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID && w.CurveType == curveType && w.Status == model.StatusActive {
			cp := *w
			return &cp, nil
		}
	}
	return nil, types.E(types.ErrWalletNotFound, "no active wallet for user and curve")
}

func (r *MemoryRegistry) GetWalletByPublicKey(_ context.Context, publicKey string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.PublicKey == publicKey {
			cp := *w
			return &cp, nil
		}
	}
	return nil, types.E(types.ErrWalletNotFound, "no wallet with that public key")
}

func (r *MemoryRegistry) ListWalletsByUser(_ context.Context, userID string) ([]model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Wallet
	for _, w := range r.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) SetWalletStatus(_ context.Context, walletID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return types.E(types.ErrWalletNotFound, "no wallet with that id")
	}
	w.Status = status
	return nil
}

func (r *MemoryRegistry) GetServerShare(_ context.Context, walletID string) (*model.ServerShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[walletID]
	if !ok {
		return nil, types.E(types.ErrKeyShareNotFound, "no server share for wallet")
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRegistry) CreateNode(_ context.Context, node *model.KeyShareNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.ServerURL == node.ServerURL && !n.DeletedAt.Valid {
			return types.E(types.ErrBadRequest, "a node with that server url already exists")
		}
	}
	cp := *node
	r.nodes[node.ID] = &cp
	return nil
}

func (r *MemoryRegistry) GetNode(_ context.Context, nodeID string) (*model.KeyShareNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok || n.DeletedAt.Valid {
		return nil, types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
	}
	cp := *n
	return &cp, nil
}

func (r *MemoryRegistry) GetNodeByURL(_ context.Context, serverURL string) (*model.KeyShareNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.ServerURL == serverURL && !n.DeletedAt.Valid {
			cp := *n
			return &cp, nil
		}
	}
	return nil, types.E(types.ErrKsNodeNotFound, "no key-share node with that server url")
}

func (r *MemoryRegistry) ListNodes(_ context.Context) ([]model.KeyShareNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.KeyShareNode
	for _, n := range r.nodes {
		if !n.DeletedAt.Valid {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) ListActiveNodes(_ context.Context) ([]model.KeyShareNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.KeyShareNode
	for _, n := range r.nodes {
		if n.Status == model.StatusActive && !n.DeletedAt.Valid {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) SetNodeStatus(_ context.Context, nodeID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok || n.DeletedAt.Valid {
		return types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
	}
	n.Status = status
	return nil
}

func (r *MemoryRegistry) SoftDeleteNode(_ context.Context, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
	}
	if n.DeletedAt.Valid {
		return types.E(types.ErrKsNodeAlreadyDeleted, "node is already deleted")
	}
	n.DeletedAt = gorm.DeletedAt{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (r *MemoryRegistry) UpsertWalletNode(_ context.Context, walletID, nodeID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := walletID + "/" + nodeID
	if edge, ok := r.edges[key]; ok {
		edge.Status = status
		return nil
	}
	r.edges[key] = &model.WalletKSNode{
		ID:       uuid.NewString(),
		WalletID: walletID,
		NodeID:   nodeID,
		Status:   status,
	}
	return nil
}

func (r *MemoryRegistry) ListWalletNodes(_ context.Context, walletID string) ([]model.WalletKSNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.WalletKSNode
	for _, e := range r.edges {
		if e.WalletID == walletID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) RecordHealthCheck(_ context.Context, nodeID string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthChecks = append(r.healthChecks, model.KsNodeHealthCheck{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Healthy:   healthy,
		CheckedAt: time.Now().UTC(),
	})
	return nil
}
