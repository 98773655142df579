package model

import (
	"time"
)

// Commit-reveal session states.
const (
	SessionCommitted = "COMMITTED"
	SessionRevealed  = "REVEALED"
	SessionExpired   = "EXPIRED"
)

// Operation types a commit-reveal session may bind.
const (
	OpSignIn          = "sign_in"
	OpSignUp          = "sign_up"
	OpSignInReshare   = "sign_in_reshare"
	OpRegisterReshare = "register_reshare"
	OpAddEd25519      = "add_ed25519"
)

// User is the node-local identity row. The same external user maps to one row
// per (auth_type, auth_id) pair.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	AuthType  string `gorm:"size:32;not null;uniqueIndex:idx_users_auth"`
	AuthID    string `gorm:"size:255;not null;uniqueIndex:idx_users_auth"`
	CreatedAt time.Time
}

// Wallet maps a public key to its owning user on this node. The public key is
// globally unique per node across all users and curves.
type Wallet struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;not null;index"`
	CurveType string `gorm:"size:16;not null"`
	PublicKey string `gorm:"size:130;not null;uniqueIndex"`
	CreatedAt time.Time
}

// KeyShare holds the ciphertext of this node's half of a wallet key. The
// ciphertext never changes after creation; reshare verification only bumps
// ResharedAt.
type KeyShare struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	WalletID   string `gorm:"type:uuid;not null;uniqueIndex"`
	EncShare   []byte `gorm:"not null"`
	CreatedAt  time.Time
	ResharedAt *time.Time
}

// CommitRevealSession binds a one-time client credential to a pending node
// operation. SessionID, ClientEphemeralKey and IDTokenHash are each unique
// across all sessions, live and dead.
type CommitRevealSession struct {
	SessionID          string `gorm:"size:64;primaryKey"`
	OperationType      string `gorm:"size:32;not null"`
	ClientEphemeralKey string `gorm:"size:64;not null;uniqueIndex"`
	IDTokenHash        string `gorm:"size:64;not null;uniqueIndex"`
	State              string `gorm:"size:16;not null"`
	ExpiresAt          time.Time
	CreatedAt          time.Time
	RevealedAt         *time.Time
}

func (CommitRevealSession) TableName() string { return "2_commit_reveal_sessions" }

// ValidOperationType reports whether the commit request names a known
// operation.
func ValidOperationType(op string) bool {
	switch op {
	case OpSignIn, OpSignUp, OpSignInReshare, OpRegisterReshare, OpAddEd25519:
		return true
	}
	return false
}
