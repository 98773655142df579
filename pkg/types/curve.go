package types

import "fmt"

// CurveType identifies the signature scheme a wallet key belongs to.
type CurveType string

const (
	CurveSecp256k1 CurveType = "secp256k1"
	CurveEd25519   CurveType = "ed25519"
)

// Expected compressed public key sizes per curve.
const (
	Secp256k1PubKeyLen = 33
	Ed25519PubKeyLen   = 32
)

// ParseCurveType validates a curve name received at a boundary.
func ParseCurveType(s string) (CurveType, error) {
	switch CurveType(s) {
	case CurveSecp256k1:
		return CurveSecp256k1, nil
	case CurveEd25519:
		return CurveEd25519, nil
	default:
		return "", E(ErrCurveTypeNotSupported, fmt.Sprintf("unsupported curve type %q", s))
	}
}

// PubKeyLen returns the expected public key byte length for the curve.
func (c CurveType) PubKeyLen() int {
	if c == CurveEd25519 {
		return Ed25519PubKeyLen
	}
	return Secp256k1PubKeyLen
}

// WalletShare is the per-curve payload of the v2 keyshare endpoints. Share is
// empty for pure lookups (get/check).
type WalletShare struct {
	PublicKey string `json:"public_key" binding:"required"`
	Share     string `json:"share,omitempty"`
}

// CurveWallets replaces the loosely-typed curve-keyed request object with a
// closed key set. At least one curve must be present.
type CurveWallets struct {
	Secp256k1 *WalletShare `json:"secp256k1,omitempty"`
	Ed25519   *WalletShare `json:"ed25519,omitempty"`
}

// IsEmpty reports whether no curve entry is present.
func (w CurveWallets) IsEmpty() bool {
	return w.Secp256k1 == nil && w.Ed25519 == nil
}

// ForEach visits the present curve entries in a fixed order (secp256k1 first)
// and stops at the first error.
func (w CurveWallets) ForEach(fn func(curve CurveType, ws WalletShare) error) error {
	if w.Secp256k1 != nil {
		if err := fn(CurveSecp256k1, *w.Secp256k1); err != nil {
			return err
		}
	}
	if w.Ed25519 != nil {
		if err := fn(CurveEd25519, *w.Ed25519); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry for the given curve, if present.
func (w CurveWallets) Get(curve CurveType) (WalletShare, bool) {
	switch curve {
	case CurveSecp256k1:
		if w.Secp256k1 != nil {
			return *w.Secp256k1, true
		}
	case CurveEd25519:
		if w.Ed25519 != nil {
			return *w.Ed25519, true
		}
	}
	return WalletShare{}, false
}
