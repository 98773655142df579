package model

import (
	"time"

	"gorm.io/gorm"
)

// Wallet and node statuses.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// WalletKSNode edge statuses.
const (
	EdgeActive        = "ACTIVE"
	EdgeNotRegistered = "NOT_REGISTERED"
	EdgeUnrecoverable = "UNRECOVERABLE_DATA_LOSS"
)

// TSS stage types.
const (
	StageKeygen         = "KEYGEN"
	StagePresignEd25519 = "PRESIGN_ED25519"
	StagePresignStep1   = "PRESIGN_STEP1"
	StagePresignStep2   = "PRESIGN_STEP2"
	StagePresignStep3   = "PRESIGN_STEP3"
	StageSignEd25519    = "SIGN_ED25519"
	StageSignEcdsa      = "SIGN_ECDSA"
	StageReshareVerify  = "RESHARE_VERIFY"
	StageReshareUpdate  = "RESHARE_UPDATE"
)

// TSS stage statuses.
const (
	StagePending   = "PENDING"
	StageCompleted = "COMPLETED"
	StageFailed    = "FAILED"
	StageAborted   = "ABORTED"
)

// Reshare reasons reported by the user check.
const (
	ReshareReasonDataLoss     = "UNRECOVERABLE_NODE_DATA_LOSS"
	ReshareReasonNewNodeAdded = "NEW_NODE_ADDED"
)

// User is the orchestrator-side identity row, keyed by verified email.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"size:255;not null;uniqueIndex"`
	AuthType  string `gorm:"size:32;not null"`
	AuthID    string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

// Wallet is the registry's view of one threshold wallet. Immutable except
// Status; never hard-deleted.
type Wallet struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	UserID       string `gorm:"type:uuid;not null;index"`
	CurveType    string `gorm:"size:16;not null"`
	PublicKey    string `gorm:"size:130;not null;uniqueIndex"`
	Status       string `gorm:"size:16;not null"`
	SSSThreshold int    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fields flattens the auditable fields for diffing.
func (w *Wallet) Fields() map[string]any {
	return map[string]any{
		"user_id":       w.UserID,
		"curve_type":    w.CurveType,
		"public_key":    w.PublicKey,
		"status":        w.Status,
		"sss_threshold": w.SSSThreshold,
	}
}

// ServerShare holds the orchestrator's encrypted half of a wallet key: the
// signing and verifying scalars, both sealed by the gateway. Everything else
// is recomputed on use (ed25519 key package) or staged per session (ECDSA
// round state).
type ServerShare struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	WalletID          string `gorm:"type:uuid;not null;uniqueIndex"`
	EncSigningShare   []byte
	EncVerifyingShare []byte
	CreatedAt         time.Time
}

// KeyShareNode is one registered KSN. Soft-deleted only.
type KeyShareNode struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"size:64;not null"`
	ServerURL string `gorm:"size:255;not null;uniqueIndex"`
	Status    string `gorm:"size:16;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (n *KeyShareNode) Fields() map[string]any {
	return map[string]any{
		"name":       n.Name,
		"server_url": n.ServerURL,
		"status":     n.Status,
	}
}

// WalletKSNode is the wallet-to-node membership edge.
type WalletKSNode struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	WalletID  string `gorm:"type:uuid;not null;uniqueIndex:idx_wallet_node"`
	NodeID    string `gorm:"type:uuid;not null;uniqueIndex:idx_wallet_node"`
	Status    string `gorm:"size:32;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TssSession is one logical multi-round protocol run. Immutable once created.
type TssSession struct {
	SessionID  string `gorm:"size:64;primaryKey"`
	WalletID   string `gorm:"type:uuid;not null;index"`
	CustomerID string `gorm:"size:64"`
	CreatedAt  time.Time
}

func (TssSession) TableName() string { return "tss_sessions" }

// TssStage is one round of a session. Status moves forward only; a COMPLETED
// stage never accepts new input.
type TssStage struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	SessionID   string `gorm:"size:64;not null;uniqueIndex:idx_session_stage"`
	StageType   string `gorm:"size:32;not null;uniqueIndex:idx_session_stage"`
	StageStatus string `gorm:"size:16;not null"`
	StageData   []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KsNodeHealthCheck is one probe outcome for a node.
type KsNodeHealthCheck struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	NodeID    string `gorm:"type:uuid;not null;index"`
	Healthy   bool
	CheckedAt time.Time
}

func (KsNodeHealthCheck) TableName() string { return "ks_node_health_checks" }
