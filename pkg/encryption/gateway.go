package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const gatewayKeyInfo = "oko-keyshare-at-rest-v1"

var ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")

// Gateway performs symmetric encryption of key-share bytes with a key derived
// from the per-deployment secret. Every component that persists or reveals a
// share goes through it.
type Gateway struct {
	aead cipher.AEAD
}

// NewGateway derives a 256-bit AES-GCM key from the deployment secret via
// HKDF-SHA256. The secret itself is never used as a raw key.
func NewGateway(secret string) (*Gateway, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}

	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(gatewayKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive gateway key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Gateway{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The nonce is prepended
// to the returned ciphertext.
func (g *Gateway) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return g.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (g *Gateway) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < g.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:g.aead.NonceSize()], ciphertext[g.aead.NonceSize():]
	plaintext, err := g.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}
