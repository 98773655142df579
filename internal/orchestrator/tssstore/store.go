// Package tssstore parks multi-round protocol state between rounds so any
// stateless worker can serve the next request of a session.
package tssstore

import (
	"context"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
)

// Store persists TSS sessions and their stages. Stage status only moves
// forward: PENDING -> COMPLETED | FAILED | ABORTED. A stage type exists at
// most once per session, which is what makes round replay detectable.
type Store interface {
	CreateSession(ctx context.Context, sess *model.TssSession) error
	GetSession(ctx context.Context, sessionID string) (*model.TssSession, error)

	// OpenStage creates the PENDING stage for one round. A second open of the
	// same stage type on the same session fails INVALID_TSS_STAGE.
	OpenStage(ctx context.Context, sessionID, stageType string) (*model.TssStage, error)

	// CompleteStage stores the round output and moves PENDING -> COMPLETED.
	// Any other starting status fails INVALID_TSS_STAGE.
	CompleteStage(ctx context.Context, sessionID, stageType string, data []byte) error

	// FailStage moves PENDING -> FAILED.
	FailStage(ctx context.Context, sessionID, stageType string) error

	// AbortPendingStages aborts every PENDING stage of the session. With no
	// pending stage left the session is not abortable: INVALID_TSS_SESSION.
	AbortPendingStages(ctx context.Context, sessionID string) error

	GetStage(ctx context.Context, sessionID, stageType string) (*model.TssStage, error)
	ListStages(ctx context.Context, sessionID string) ([]model.TssStage, error)
}
