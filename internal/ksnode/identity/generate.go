package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"filippo.io/age"
)

// Generate creates a fresh Ed25519 node keypair under identityDir. With a
// passphrase the seed is written age-encrypted (<name>_private.key.age),
// otherwise plain (<name>_private.key). Returns the public key hex so the
// operator can distribute it.
func Generate(identityDir, nodeName, passphrase string) (string, error) {
	if err := os.MkdirAll(identityDir, 0750); err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate keypair: %w", err)
	}
	seedHex := hex.EncodeToString(priv.Seed())

	if passphrase == "" {
		path, err := keyFilePath(identityDir, nodeName, false)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(seedHex), 0600); err != nil {
			return "", fmt.Errorf("write private key: %w", err)
		}
		return hex.EncodeToString(pub), nil
	}

	path, err := keyFilePath(identityDir, nodeName, true)
	if err != nil {
		return "", err
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return "", fmt.Errorf("create encryption recipient: %w", err)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("create key file: %w", err)
	}
	defer out.Close()

	w, err := age.Encrypt(out, recipient)
	if err != nil {
		return "", fmt.Errorf("start encryption: %w", err)
	}
	if _, err := w.Write([]byte(seedHex)); err != nil {
		return "", fmt.Errorf("write encrypted key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish encryption: %w", err)
	}

	return hex.EncodeToString(pub), nil
}
