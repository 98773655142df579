package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/chainapsis/oko-tss/internal/ksnode/model"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// GormStore is the Postgres-backed node store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the connection and migrates the node-local schema.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Wallet{},
		&model.KeyShare{},
		&model.CommitRevealSession{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("Key-share node schema migrated")

	return &GormStore{db: db}, nil
}

func (s *GormStore) RegisterShare(ctx context.Context, id Identity, curve types.CurveType, publicKey string, encShare []byte) (string, error) {
	var walletID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Wallet{}).Where("public_key = ?", publicKey).Count(&count).Error; err != nil {
			return types.WrapE(types.ErrUnknown, "query wallet by public key", err)
		}
		if count > 0 {
			return types.E(types.ErrDuplicatePublicKey, "public key already registered on this node")
		}

		user, err := findOrCreateUser(tx, id)
		if err != nil {
			return err
		}

		wallet := model.Wallet{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			CurveType: string(curve),
			PublicKey: publicKey,
		}
		if err := tx.Create(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.E(types.ErrDuplicatePublicKey, "public key already registered on this node")
			}
			return types.WrapE(types.ErrUnknown, "create wallet", err)
		}

		share := model.KeyShare{
			ID:       uuid.NewString(),
			WalletID: wallet.ID,
			EncShare: encShare,
		}
		if err := tx.Create(&share).Error; err != nil {
			return types.WrapE(types.ErrUnknown, "create key share", err)
		}

		walletID = wallet.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return walletID, nil
}

func findOrCreateUser(tx *gorm.DB, id Identity) (*model.User, error) {
	var user model.User
	err := tx.Where("auth_type = ? AND auth_id = ?", id.AuthType, id.AuthID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.WrapE(types.ErrUnknown, "query user", err)
	}

	user = model.User{ID: uuid.NewString(), AuthType: id.AuthType, AuthID: id.AuthID}
	if err := tx.Create(&user).Error; err != nil {
		return nil, types.WrapE(types.ErrUnknown, "create user", err)
	}
	return &user, nil
}

func (s *GormStore) LookupShare(ctx context.Context, id Identity, curve types.CurveType, publicKey string) (string, []byte, error) {
	db := s.db.WithContext(ctx)

	var user model.User
	if err := db.Where("auth_type = ? AND auth_id = ?", id.AuthType, id.AuthID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, types.E(types.ErrUserNotFound, "user not registered on this node")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query user", err)
	}

	var wallet model.Wallet
	if err := db.Where("public_key = ? AND curve_type = ?", publicKey, string(curve)).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, types.E(types.ErrWalletNotFound, "no wallet for public key")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	if wallet.UserID != user.ID {
		return "", nil, types.E(types.ErrUnauthorized, "wallet belongs to a different user")
	}

	var share model.KeyShare
	if err := db.Where("wallet_id = ?", wallet.ID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, types.E(types.ErrKeyShareNotFound, "no key share stored for wallet")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query key share", err)
	}

	return share.ID, share.EncShare, nil
}

func (s *GormStore) MarkReshared(ctx context.Context, shareID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.KeyShare{}).
		Where("id = ?", shareID).
		Update("reshared_at", at)
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "update reshare timestamp", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.E(types.ErrKeyShareNotFound, "key share vanished during reshare")
	}
	return nil
}

func (s *GormStore) WalletExists(ctx context.Context, id Identity, curve types.CurveType, publicKey string) (bool, error) {
	db := s.db.WithContext(ctx)

	var wallet model.Wallet
	if err := db.Where("public_key = ? AND curve_type = ?", publicKey, string(curve)).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, types.WrapE(types.ErrUnknown, "query wallet", err)
	}

	var user model.User
	if err := db.Where("auth_type = ? AND auth_id = ?", id.AuthType, id.AuthID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The key exists but this caller has no identity here.
			return false, types.E(types.ErrPublicKeyInvalid, "public key registered to a different user")
		}
		return false, types.WrapE(types.ErrUnknown, "query user", err)
	}
	if wallet.UserID != user.ID {
		return false, types.E(types.ErrPublicKeyInvalid, "public key registered to a different user")
	}
	return true, nil
}

func (s *GormStore) CreateCommitSession(ctx context.Context, sess *model.CommitRevealSession) error {
	// Check the three uniqueness constraints up front for a clean 409; the
	// unique indexes remain the backstop under concurrency.
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CommitRevealSession{}).
		Where("session_id = ? OR client_ephemeral_key = ? OR id_token_hash = ?",
			sess.SessionID, sess.ClientEphemeralKey, sess.IDTokenHash).
		Count(&count).Error
	if err != nil {
		return types.WrapE(types.ErrUnknown, "query commit-reveal sessions", err)
	}
	if count > 0 {
		return types.E(types.ErrSessionAlreadyExists, "session id, ephemeral key or token hash already used")
	}

	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.E(types.ErrSessionAlreadyExists, "session id, ephemeral key or token hash already used")
		}
		return types.WrapE(types.ErrUnknown, "create commit-reveal session", err)
	}
	return nil
}

func (s *GormStore) RevealCommitSession(ctx context.Context, sessionID string, now time.Time) (*model.CommitRevealSession, error) {
	var sess model.CommitRevealSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.E(types.ErrInvalidTssSession, "unknown commit-reveal session")
			}
			return types.WrapE(types.ErrUnknown, "query commit-reveal session", err)
		}

		if sess.State != model.SessionCommitted || now.After(sess.ExpiresAt) {
			return types.E(types.ErrCommitRevealExpired, "session is expired or already revealed")
		}

		res := tx.Model(&model.CommitRevealSession{}).
			Where("session_id = ? AND state = ?", sessionID, model.SessionCommitted).
			Updates(map[string]any{"state": model.SessionRevealed, "revealed_at": now})
		if res.Error != nil {
			return types.WrapE(types.ErrUnknown, "update commit-reveal session", res.Error)
		}
		if res.RowsAffected == 0 {
			return types.E(types.ErrCommitRevealExpired, "session is expired or already revealed")
		}

		sess.State = model.SessionRevealed
		sess.RevealedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) ExpireCommitSessions(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Model(&model.CommitRevealSession{}).
		Where("state = ? AND expires_at < ?", model.SessionCommitted, now).
		Update("state", model.SessionExpired)
	if res.Error != nil {
		return 0, types.WrapE(types.ErrUnknown, "expire commit-reveal sessions", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
