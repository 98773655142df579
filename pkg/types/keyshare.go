package types

// Request/response shapes of the key-share node protocol (v2). The v1
// single-curve endpoints reuse the per-curve fragments directly.

// KeyShareGetRequest asks a node for the caller's encrypted shares.
type KeyShareGetRequest struct {
	AuthType   string       `json:"auth_type" binding:"required"`
	UserAuthID string       `json:"user_auth_id" binding:"required"`
	Wallets    CurveWallets `json:"wallets" binding:"required"`
}

// KeyShareRegisterRequest registers one share per requested curve.
type KeyShareRegisterRequest struct {
	AuthType   string       `json:"auth_type" binding:"required"`
	UserAuthID string       `json:"user_auth_id" binding:"required"`
	Wallets    CurveWallets `json:"wallets" binding:"required"`
}

// ShareResult is the per-curve success payload of get.
type ShareResult struct {
	ShareID string `json:"share_id"`
	Share   string `json:"share"`
}

// CurveShares mirrors CurveWallets on the response side.
type CurveShares struct {
	Secp256k1 *ShareResult `json:"secp256k1,omitempty"`
	Ed25519   *ShareResult `json:"ed25519,omitempty"`
}

// Set stores a per-curve result; unknown curves are ignored because the
// request was validated at the boundary.
func (s *CurveShares) Set(curve CurveType, r ShareResult) {
	switch curve {
	case CurveSecp256k1:
		s.Secp256k1 = &r
	case CurveEd25519:
		s.Ed25519 = &r
	}
}

// CheckResult is the per-curve existence probe result.
type CheckResult struct {
	Exists bool `json:"exists"`
}

// CurveChecks mirrors CurveWallets for check responses.
type CurveChecks struct {
	Secp256k1 *CheckResult `json:"secp256k1,omitempty"`
	Ed25519   *CheckResult `json:"ed25519,omitempty"`
}

func (s *CurveChecks) Set(curve CurveType, r CheckResult) {
	switch curve {
	case CurveSecp256k1:
		s.Secp256k1 = &r
	case CurveEd25519:
		s.Ed25519 = &r
	}
}

// RegisterResult is the per-curve success payload of register.
type RegisterResult struct {
	WalletID string `json:"wallet_id"`
}

// CurveRegistrations mirrors CurveWallets for register responses.
type CurveRegistrations struct {
	Secp256k1 *RegisterResult `json:"secp256k1,omitempty"`
	Ed25519   *RegisterResult `json:"ed25519,omitempty"`
}

func (s *CurveRegistrations) Set(curve CurveType, r RegisterResult) {
	switch curve {
	case CurveSecp256k1:
		s.Secp256k1 = &r
	case CurveEd25519:
		s.Ed25519 = &r
	}
}

// CommitRequest opens a commit-reveal session before a high-sensitivity node
// operation. Both hex fields must decode to exactly 32 bytes.
type CommitRequest struct {
	SessionID          string `json:"session_id" binding:"required"`
	OperationType      string `json:"operation_type" binding:"required"`
	ClientEphemeralKey string `json:"client_ephemeral_pubkey" binding:"required"`
	IDTokenHash        string `json:"id_token_hash" binding:"required"`
}

// CommitResponse returns the node's non-repudiable commitment signature over
// session_id || client_ephemeral_pubkey || id_token_hash.
type CommitResponse struct {
	NodePubKey    string `json:"node_pubkey"`
	NodeSignature string `json:"node_signature"`
}

// RevealRequest closes a commit-reveal session by disclosing the committed
// one-time credential.
type RevealRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	IDToken   string `json:"id_token" binding:"required"`
}
