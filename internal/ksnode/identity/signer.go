// Package identity manages the key-share node's long-term Ed25519 keypair,
// used to sign commit-reveal commitments non-repudiably.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"filippo.io/age"
	"golang.org/x/term"

	"github.com/chainapsis/oko-tss/pkg/logger"
)

// Signer holds the node's long-term private key in memory for the process
// lifetime.
type Signer struct {
	nodeName   string
	privateKey ed25519.PrivateKey
}

// NewSigner loads the node key from identityDir. When decrypt is true the
// age-encrypted variant (<name>_private.key.age) is required; the passphrase
// comes from agePasswordFile or, if empty, an interactive prompt.
func NewSigner(identityDir, nodeName string, decrypt bool, agePasswordFile string) (*Signer, error) {
	keyHex, err := loadPrivateKey(identityDir, nodeName, decrypt, agePasswordFile)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid private key format: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(seed) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(seed)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(seed)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(seed))
	}

	return &Signer{nodeName: nodeName, privateKey: priv}, nil
}

// NewSignerFromKey wraps an in-memory key; used by tests and key generation.
func NewSignerFromKey(nodeName string, priv ed25519.PrivateKey) *Signer {
	return &Signer{nodeName: nodeName, privateKey: priv}
}

// Sign signs msg with the node's long-term key.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.privateKey, msg)
}

// PublicKeyHex returns the node's public key in lowercase hex.
func (s *Signer) PublicKeyHex() string {
	pub := s.privateKey.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

func loadPrivateKey(identityDir, nodeName string, decrypt bool, agePasswordFile string) (string, error) {
	encryptedKeyPath, err := keyFilePath(identityDir, nodeName, true)
	if err != nil {
		return "", err
	}
	unencryptedKeyPath, err := keyFilePath(identityDir, nodeName, false)
	if err != nil {
		return "", err
	}

	if decrypt {
		if _, err := os.Stat(encryptedKeyPath); err != nil {
			return "", fmt.Errorf("no encrypted private key for node %s at %s: %w", nodeName, encryptedKeyPath, err)
		}
		logger.Info("Using age-encrypted node private key", "node", nodeName)

		encryptedFile, err := os.Open(encryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("open encrypted key file: %w", err)
		}
		defer encryptedFile.Close()

		passphrase, err := readPassphrase(agePasswordFile)
		if err != nil {
			return "", err
		}

		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return "", fmt.Errorf("create decryption identity: %w", err)
		}
		zeroString(&passphrase)

		decrypter, err := age.Decrypt(encryptedFile, identity)
		if err != nil {
			return "", fmt.Errorf("decrypt private key: %w", err)
		}
		decrypted, err := io.ReadAll(decrypter)
		if err != nil {
			return "", fmt.Errorf("read decrypted key: %w", err)
		}
		return string(decrypted), nil
	}

	data, err := os.ReadFile(unencryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("no unencrypted private key for node %s: %w", nodeName, err)
	}
	return string(data), nil
}

func readPassphrase(agePasswordFile string) (string, error) {
	if agePasswordFile != "" {
		data, err := os.ReadFile(agePasswordFile)
		if err != nil {
			return "", fmt.Errorf("read age password file %s: %w", agePasswordFile, err)
		}
		passphrase := strings.TrimSpace(string(data))
		zeroBytes(data)
		return passphrase, nil
	}

	fmt.Print("Enter passphrase to decrypt node private key: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	passphrase := string(bytePassword)
	zeroBytes(bytePassword)
	return passphrase, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func zeroString(s *string) {
	*s = strings.Repeat("\x00", len(*s))
	*s = ""
}
