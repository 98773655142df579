package tssstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*model.TssSession
	stages   map[string]*model.TssStage // by session_id+"/"+stage_type
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.TssSession),
		stages:   make(map[string]*model.TssStage),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *model.TssSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.SessionID]; ok {
		return types.E(types.ErrSessionAlreadyExists, "session id already in use")
	}
	cp := *sess
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*model.TssSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.E(types.ErrInvalidTssSession, "unknown tss session")
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) OpenStage(_ context.Context, sessionID, stageType string) (*model.TssStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionID + "/" + stageType
	if _, ok := s.stages[key]; ok {
		return nil, types.E(types.ErrInvalidTssStage, "stage already exists for session")
	}
	stage := &model.TssStage{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		StageType:   stageType,
		StageStatus: model.StagePending,
		CreatedAt:   time.Now().UTC(),
	}
	s.stages[key] = stage
	cp := *stage
	return &cp, nil
}

func (s *MemoryStore) CompleteStage(_ context.Context, sessionID, stageType string, data []byte) error {
	return s.transition(sessionID, stageType, model.StageCompleted, data)
}

func (s *MemoryStore) FailStage(_ context.Context, sessionID, stageType string) error {
	return s.transition(sessionID, stageType, model.StageFailed, nil)
}

func (s *MemoryStore) transition(sessionID, stageType, to string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[sessionID+"/"+stageType]
	if !ok || stage.StageStatus != model.StagePending {
		return types.E(types.ErrInvalidTssStage, "stage is not pending")
	}
	stage.StageStatus = to
	if data != nil {
		stage.StageData = append([]byte(nil), data...)
	}
	stage.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AbortPendingStages(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	aborted := 0
	for _, stage := range s.stages {
		if stage.SessionID == sessionID && stage.StageStatus == model.StagePending {
			stage.StageStatus = model.StageAborted
			stage.UpdatedAt = time.Now().UTC()
			aborted++
		}
	}
	if aborted == 0 {
		return types.E(types.ErrInvalidTssSession, "session has no pending stage to abort")
	}
	return nil
}

func (s *MemoryStore) GetStage(_ context.Context, sessionID, stageType string) (*model.TssStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[sessionID+"/"+stageType]
	if !ok {
		return nil, types.E(types.ErrInvalidTssStage, "no such stage for session")
	}
	cp := *stage
	return &cp, nil
}

func (s *MemoryStore) ListStages(_ context.Context, sessionID string) ([]model.TssStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TssStage
	for _, stage := range s.stages {
		if stage.SessionID == sessionID {
			out = append(out, *stage)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
