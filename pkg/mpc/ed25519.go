// Package mpc is the cryptographic capability behind the protocol
// orchestrator: key-share generation, deterministic key-package
// reconstruction and round-1 commitment production. The multi-round signing
// math itself lives on the client side of the protocol; the server only
// produces, persists and verifies its own round material.
package mpc

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bnb-chain/tss-lib/v2/tss"
	"github.com/decred/dcrd/dcrec/edwards/v2"
)

const scalarLen = 32

// Ed25519KeyPackage is the server's signing state for one ed25519 wallet.
// Only the signing and verifying shares are ever persisted; everything else
// is recomputed here, which keeps the stored secret surface to two scalars.
type Ed25519KeyPackage struct {
	Identifier     uint16
	SigningShare   []byte
	VerifyingShare []byte
	GroupPublicKey []byte
}

// ReconstructEd25519KeyPackage rebuilds the key package from the persisted
// pair. Reconstruction is deterministic, and it re-derives the verifying
// share from the signing share: a tampered or corrupted verifying share is
// rejected instead of silently producing unusable round material.
func ReconstructEd25519KeyPackage(identifier uint16, signingShare, verifyingShare, groupPublicKey []byte) (*Ed25519KeyPackage, error) {
	if len(signingShare) != scalarLen {
		return nil, fmt.Errorf("signing share must be %d bytes, got %d", scalarLen, len(signingShare))
	}
	if len(verifyingShare) != scalarLen {
		return nil, fmt.Errorf("verifying share must be %d bytes, got %d", scalarLen, len(verifyingShare))
	}

	derived, err := scalarBasePoint(signingShare)
	if err != nil {
		return nil, err
	}
	if string(derived) != string(verifyingShare) {
		return nil, fmt.Errorf("verifying share does not match signing share")
	}

	return &Ed25519KeyPackage{
		Identifier:     identifier,
		SigningShare:   append([]byte(nil), signingShare...),
		VerifyingShare: append([]byte(nil), verifyingShare...),
		GroupPublicKey: append([]byte(nil), groupPublicKey...),
	}, nil
}

// Ed25519Nonces is the secret half of one round-1 output. It is parked in the
// stage store between rounds and consumed exactly once.
type Ed25519Nonces struct {
	Hiding  []byte `json:"hiding"`
	Binding []byte `json:"binding"`
}

// Ed25519Commitments is the public half of one round-1 output, returned to
// the caller for aggregation with the client's own commitments.
type Ed25519Commitments struct {
	Identifier        uint16 `json:"identifier"`
	HidingCommitment  []byte `json:"hiding_commitment"`
	BindingCommitment []byte `json:"binding_commitment"`
}

// Round1 produces fresh signing nonces and their commitments. Nonces are
// sampled from the CSPRNG per call; two presigns over the same wallet never
// share round material.
func (kp *Ed25519KeyPackage) Round1() (*Ed25519Nonces, *Ed25519Commitments, error) {
	hiding, hidingCommit, err := randomScalarWithCommitment()
	if err != nil {
		return nil, nil, err
	}
	binding, bindingCommit, err := randomScalarWithCommitment()
	if err != nil {
		return nil, nil, err
	}

	nonces := &Ed25519Nonces{Hiding: hiding, Binding: binding}
	commitments := &Ed25519Commitments{
		Identifier:        kp.Identifier,
		HidingCommitment:  hidingCommit,
		BindingCommitment: bindingCommit,
	}
	return nonces, commitments, nil
}

// GenerateEd25519Share samples a fresh server-side key share and returns
// (signing share, verifying share).
func GenerateEd25519Share() ([]byte, []byte, error) {
	scalar, err := randomScalar()
	if err != nil {
		return nil, nil, err
	}
	point, err := scalarBasePoint(scalar)
	if err != nil {
		return nil, nil, err
	}
	return scalar, point, nil
}

// CombineEd25519PublicKeys adds the client and server verifying shares into
// the wallet group public key.
func CombineEd25519PublicKeys(clientShare, serverShare []byte) ([]byte, error) {
	clientPub, err := edwards.ParsePubKey(clientShare)
	if err != nil {
		return nil, fmt.Errorf("parse client verifying share: %w", err)
	}
	serverPub, err := edwards.ParsePubKey(serverShare)
	if err != nil {
		return nil, fmt.Errorf("parse server verifying share: %w", err)
	}

	curve := tss.Edwards()
	x, y := curve.Add(clientPub.X, clientPub.Y, serverPub.X, serverPub.Y)
	return edwards.NewPublicKey(x, y).Serialize(), nil
}

func randomScalar() ([]byte, error) {
	n := tss.Edwards().Params().N
	k, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, fmt.Errorf("sample scalar: %w", err)
	}
	return padScalar(k), nil
}

func randomScalarWithCommitment() ([]byte, []byte, error) {
	scalar, err := randomScalar()
	if err != nil {
		return nil, nil, err
	}
	point, err := scalarBasePoint(scalar)
	if err != nil {
		return nil, nil, err
	}
	return scalar, point, nil
}

func scalarBasePoint(scalar []byte) ([]byte, error) {
	k := new(big.Int).SetBytes(scalar)
	if k.Sign() == 0 {
		return nil, fmt.Errorf("scalar is zero")
	}
	x, y := tss.Edwards().ScalarBaseMult(scalar)
	return edwards.NewPublicKey(x, y).Serialize(), nil
}

func padScalar(k *big.Int) []byte {
	out := make([]byte, scalarLen)
	k.FillBytes(out)
	return out
}
