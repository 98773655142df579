package encryption

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ParseEd25519PublicKeyFromHex decodes a 32-byte hex Ed25519 public key.
func ParseEd25519PublicKeyFromHex(pubKeyHex string) (ed25519.PublicKey, error) {
	bytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length %d", len(bytes))
	}
	return ed25519.PublicKey(bytes), nil
}

// ParseSecp256k1PublicKeyFromHex decodes a 33-byte compressed secp256k1
// public key and validates it is on the curve.
func ParseSecp256k1PublicKeyFromHex(pubKeyHex string) (*secp256k1.PublicKey, error) {
	bytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(bytes)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 public key: %w", err)
	}
	return pub, nil
}

// Decode32ByteHex decodes a hex string that must be exactly 32 bytes, used
// for commit-reveal ephemeral keys and token hashes.
func Decode32ByteHex(s string) ([]byte, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(bytes) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(bytes))
	}
	return bytes, nil
}
