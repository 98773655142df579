package tssstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// GormStore runs on the registry's connection pool; the tables were migrated
// there.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateSession(ctx context.Context, sess *model.TssSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.E(types.ErrSessionAlreadyExists, "session id already in use")
		}
		return types.WrapE(types.ErrUnknown, "create tss session", err)
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (*model.TssSession, error) {
	var sess model.TssSession
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrInvalidTssSession, "unknown tss session")
		}
		return nil, types.WrapE(types.ErrUnknown, "query tss session", err)
	}
	return &sess, nil
}

func (s *GormStore) OpenStage(ctx context.Context, sessionID, stageType string) (*model.TssStage, error) {
	stage := &model.TssStage{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		StageType:   stageType,
		StageStatus: model.StagePending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&model.TssStage{}).
			Where("session_id = ? AND stage_type = ?", sessionID, stageType).
			Count(&count).Error
		if err != nil {
			return types.WrapE(types.ErrUnknown, "query tss stage", err)
		}
		if count > 0 {
			return types.E(types.ErrInvalidTssStage, "stage already exists for session")
		}
		if err := tx.Create(stage).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.E(types.ErrInvalidTssStage, "stage already exists for session")
			}
			return types.WrapE(types.ErrUnknown, "create tss stage", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *GormStore) CompleteStage(ctx context.Context, sessionID, stageType string, data []byte) error {
	return s.transition(ctx, sessionID, stageType, model.StageCompleted, data)
}

func (s *GormStore) FailStage(ctx context.Context, sessionID, stageType string) error {
	return s.transition(ctx, sessionID, stageType, model.StageFailed, nil)
}

func (s *GormStore) transition(ctx context.Context, sessionID, stageType, to string, data []byte) error {
	updates := map[string]any{"stage_status": to}
	if data != nil {
		updates["stage_data"] = data
	}
	res := s.db.WithContext(ctx).Model(&model.TssStage{}).
		Where("session_id = ? AND stage_type = ? AND stage_status = ?", sessionID, stageType, model.StagePending).
		Updates(updates)
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "update tss stage", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.E(types.ErrInvalidTssStage, "stage is not pending")
	}
	return nil
}

func (s *GormStore) AbortPendingStages(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&model.TssStage{}).
		Where("session_id = ? AND stage_status = ?", sessionID, model.StagePending).
		Update("stage_status", model.StageAborted)
	if res.Error != nil {
		return types.WrapE(types.ErrUnknown, "abort tss stages", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.E(types.ErrInvalidTssSession, "session has no pending stage to abort")
	}
	return nil
}

func (s *GormStore) GetStage(ctx context.Context, sessionID, stageType string) (*model.TssStage, error) {
	var stage model.TssStage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND stage_type = ?", sessionID, stageType).
		First(&stage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrInvalidTssStage, "no such stage for session")
		}
		return nil, types.WrapE(types.ErrUnknown, "query tss stage", err)
	}
	return &stage, nil
}

func (s *GormStore) ListStages(ctx context.Context, sessionID string) ([]model.TssStage, error) {
	var stages []model.TssStage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&stages).Error
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "list tss stages", err)
	}
	return stages, nil
}
