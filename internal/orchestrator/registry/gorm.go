package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/config"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// GormRegistry is the Postgres-backed registry.
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry opens the connection pool and migrates the registry schema.
func NewGormRegistry(pg *config.PostgresConfig) (*GormRegistry, error) {
	db, err := gorm.Open(postgres.Open(pg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("obtain sql db: %w", err)
	}
	if pg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pg.MaxIdleConns)
	}
	if pg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pg.MaxOpenConns)
	}
	if pg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Wallet{},
		&model.ServerShare{},
		&model.KeyShareNode{},
		&model.WalletKSNode{},
		&model.TssSession{},
		&model.TssStage{},
		&model.KsNodeHealthCheck{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("Registry schema migrated")

	return &GormRegistry{db: db}, nil
}

// DB exposes the shared handle so the TSS store can run on one pool.
func (r *GormRegistry) DB() *gorm.DB { return r.db }

func (r *GormRegistry) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrUserNotFound, "no user with that email")
		}
		return nil, types.WrapE(types.ErrUnknown, "query user", err)
	}
	return &user, nil
}

func (r *GormRegistry) FindOrCreateUser(ctx context.Context, email, authType, authID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.WrapE(types.ErrUnknown, "query user", err)
	}

	user = model.User{ID: uuid.NewString(), Email: email, AuthType: authType, AuthID: authID}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "create user", err)
	}
	return &user, nil
}

func (r *GormRegistry) CreateWalletWithShare(ctx context.Context, wallet *model.Wallet, share *model.ServerShare) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&model.Wallet{}).
			Where("user_id = ? AND curve_type = ? AND status = ?", wallet.UserID, wallet.CurveType, model.StatusActive).
			Count(&count).Error
		if err != nil {
			return types.WrapE(types.ErrUnknown, "query wallets", err)
		}
		if count > 0 {
			return types.E(types.ErrWalletAlreadyExists, "user already has an active wallet for this curve")
		}

		err = tx.Model(&model.Wallet{}).Where("public_key = ?", wallet.PublicKey).Count(&count).Error
		if err != nil {
			return types.WrapE(types.ErrUnknown, "query wallets by public key", err)
		}
		if count > 0 {
			return types.E(types.ErrDuplicatePublicKey, "public key already in use")
		}

		if err := tx.Create(wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.E(types.ErrDuplicatePublicKey, "public key already in use")
			}
			return types.WrapE(types.ErrUnknown, "create wallet", err)
		}
		if err := tx.Create(share).Error; err != nil {
			return types.WrapE(types.ErrUnknown, "create server share", err)
		}
		return nil
	})
}

func (r *GormRegistry) GetWallet(ctx context.Context, walletID string) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrWalletNotFound, "no wallet with that id")
		}
		return nil, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	return &wallet, nil
}

func (r *GormRegistry) GetActiveWalletByUserAndCurve(ctx context.Context, userID, curveType string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND curve_type = ? AND status = ?", userID, curveType, model.StatusActive).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrWalletNotFound, "no active wallet for user and curve")
		}
		return nil, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	return &wallet, nil
}

func (r *GormRegistry) GetWalletByPublicKey(ctx context.Context, publicKey string) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := r.db.WithContext(ctx).Where("public_key = ?", publicKey).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrWalletNotFound, "no wallet with that public key")
		}
		return nil, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	return &wallet, nil
}

func (r *GormRegistry) ListWalletsByUser(ctx context.Context, userID string) ([]model.Wallet, error) {
	var wallets []model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&wallets).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "list wallets", err)
	}
	return wallets, nil
}

func (r *GormRegistry) SetWalletStatus(ctx context.Context, walletID, status string) error {
	res := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("id = ?", walletID).Update("status", status)
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "update wallet status", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.E(types.ErrWalletNotFound, "no wallet with that id")
	}
	return nil
}

func (r *GormRegistry) GetServerShare(ctx context.Context, walletID string) (*model.ServerShare, error) {
	var share model.ServerShare
	if err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrKeyShareNotFound, "no server share for wallet")
		}
		return nil, types.WrapE(types.ErrUnknown, "query server share", err)
	}
	return &share, nil
}

func (r *GormRegistry) CreateNode(ctx context.Context, node *model.KeyShareNode) error {
	if err := r.db.WithContext(ctx).Create(node).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.E(types.ErrBadRequest, "a node with that server url already exists")
		}
		return types.WrapE(types.ErrUnknown, "create node", err)
	}
	return nil
}

func (r *GormRegistry) GetNode(ctx context.Context, nodeID string) (*model.KeyShareNode, error) {
	var node model.KeyShareNode
	if err := r.db.WithContext(ctx).Where("id = ?", nodeID).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
		}
		return nil, types.WrapE(types.ErrUnknown, "query node", err)
	}
	return &node, nil
}

func (r *GormRegistry) GetNodeByURL(ctx context.Context, serverURL string) (*model.KeyShareNode, error) {
	var node model.KeyShareNode
	if err := r.db.WithContext(ctx).Where("server_url = ?", serverURL).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrKsNodeNotFound, "no key-share node with that server url")
		}
		return nil, types.WrapE(types.ErrUnknown, "query node", err)
	}
	return &node, nil
}

func (r *GormRegistry) ListNodes(ctx context.Context) ([]model.KeyShareNode, error) {
	var nodes []model.KeyShareNode
	if err := r.db.WithContext(ctx).Find(&nodes).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "list nodes", err)
	}
	return nodes, nil
}

func (r *GormRegistry) ListActiveNodes(ctx context.Context) ([]model.KeyShareNode, error) {
	var nodes []model.KeyShareNode
	if err := r.db.WithContext(ctx).Where("status = ?", model.StatusActive).Find(&nodes).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "list active nodes", err)
	}
	return nodes, nil
}

func (r *GormRegistry) SetNodeStatus(ctx context.Context, nodeID, status string) error {
	res := r.db.WithContext(ctx).Model(&model.KeyShareNode{}).Where("id = ?", nodeID).Update("status", status)
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "update node status", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
	}
	return nil
}

func (r *GormRegistry) SoftDeleteNode(ctx context.Context, nodeID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", nodeID).Delete(&model.KeyShareNode{})
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "delete node", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either unknown or already soft-deleted; disambiguate.
		var count int64
		if err := r.db.WithContext(ctx).Unscoped().Model(&model.KeyShareNode{}).
			Where("id = ?", nodeID).Count(&count).Error; err == nil && count > 0 {
			return types.E(types.ErrKsNodeAlreadyDeleted, "node is already deleted")
		}
		return types.E(types.ErrKsNodeNotFound, "no key-share node with that id")
	}
	return nil
}

func (r *GormRegistry) UpsertWalletNode(ctx context.Context, walletID, nodeID, status string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var edge model.WalletKSNode
		err := tx.Where("wallet_id = ? AND node_id = ?", walletID, nodeID).First(&edge).Error
		if err == nil {
			res := tx.Model(&model.WalletKSNode{}).Where("id = ?", edge.ID).Update("status", status)
			if res.Error != nil {
				return types.WrapE(types.ErrUnknown, "update wallet-node edge", res.Error)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return types.WrapE(types.ErrUnknown, "query wallet-node edge", err)
		}

		edge = model.WalletKSNode{
			ID:       uuid.NewString(),
			WalletID: walletID,
			NodeID:   nodeID,
			Status:   status,
		}
		if err := tx.Create(&edge).Error; err != nil {
			return types.WrapE(types.ErrUnknown, "create wallet-node edge", err)
		}
		return nil
	})
}

func (r *GormRegistry) ListWalletNodes(ctx context.Context, walletID string) ([]model.WalletKSNode, error) {
	var edges []model.WalletKSNode
	if err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Find(&edges).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "list wallet-node edges", err)
	}
	return edges, nil
}

func (r *GormRegistry) RecordHealthCheck(ctx context.Context, nodeID string, healthy bool) error {
	check := model.KsNodeHealthCheck{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Healthy:   healthy,
		CheckedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&check).Error; err != nil {
		return types.WrapE(types.ErrUnknown, "record health check", err)
	}
	return nil
}
