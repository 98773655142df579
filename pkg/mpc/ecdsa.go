package mpc

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnb-chain/tss-lib/v2/ecdsa/keygen"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// GenerateSecp256k1Share samples a fresh server-side key share and returns
// (signing share, verifying share compressed).
func GenerateSecp256k1Share() ([]byte, []byte, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("sample secp256k1 share: %w", err)
	}
	return priv.Serialize(), priv.PubKey().SerializeCompressed(), nil
}

// CombineSecp256k1PublicKeys adds the client and server verifying shares into
// the wallet group public key (compressed).
func CombineSecp256k1PublicKeys(clientShare, serverShare []byte) ([]byte, error) {
	clientPub, err := secp256k1.ParsePubKey(clientShare)
	if err != nil {
		return nil, fmt.Errorf("parse client verifying share: %w", err)
	}
	serverPub, err := secp256k1.ParsePubKey(serverShare)
	if err != nil {
		return nil, fmt.Errorf("parse server verifying share: %w", err)
	}

	var clientJ, serverJ, sumJ secp256k1.JacobianPoint
	clientPub.AsJacobian(&clientJ)
	serverPub.AsJacobian(&serverJ)
	secp256k1.AddNonConst(&clientJ, &serverJ, &sumJ)
	sumJ.ToAffine()

	return secp256k1.NewPublicKey(&sumJ.X, &sumJ.Y).SerializeCompressed(), nil
}

// DeriveSecp256k1VerifyingShare recomputes the verifying share from a stored
// signing share, rejecting a tampered stored pair the same way the ed25519
// reconstruction does.
func DeriveSecp256k1VerifyingShare(signingShare []byte) ([]byte, error) {
	if len(signingShare) != scalarLen {
		return nil, fmt.Errorf("signing share must be %d bytes, got %d", scalarLen, len(signingShare))
	}
	priv := secp256k1.PrivKeyFromBytes(signingShare)
	return priv.PubKey().SerializeCompressed(), nil
}

// EcdsaRound1 is one step-1 output: secret nonces parked in the stage store
// and their public commitments returned to the caller.
type EcdsaRound1 struct {
	KShare          []byte `json:"k_share"`
	GammaShare      []byte `json:"gamma_share"`
	KCommitment     []byte `json:"k_commitment"`
	GammaCommitment []byte `json:"gamma_commitment"`
}

// EcdsaPresignStep1 samples the server's nonce pair for one presign run.
func EcdsaPresignStep1() (*EcdsaRound1, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("sample k share: %w", err)
	}
	gamma, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("sample gamma share: %w", err)
	}
	return &EcdsaRound1{
		KShare:          k.Serialize(),
		GammaShare:      gamma.Serialize(),
		KCommitment:     k.PubKey().SerializeCompressed(),
		GammaCommitment: gamma.PubKey().SerializeCompressed(),
	}, nil
}

// EcdsaRound2 is the step-2 output: the combined nonce point R and the
// combined gamma commitment, both aggregated over client and server step-1
// commitments.
type EcdsaRound2 struct {
	BigR          []byte `json:"big_r"`
	BigGamma      []byte `json:"big_gamma"`
	ClientPayload []byte `json:"client_payload"`
}

// EcdsaPresignStep2 combines the client's step-1 commitments with the
// server's parked round-1 state. The client's opaque MtA payload rides along
// into the stage store; its contents are the client's side of the protocol.
func EcdsaPresignStep2(round1 *EcdsaRound1, clientKCommitment, clientGammaCommitment, clientPayload []byte) (*EcdsaRound2, error) {
	bigR, err := CombineSecp256k1PublicKeys(clientKCommitment, round1.KCommitment)
	if err != nil {
		return nil, fmt.Errorf("combine k commitments: %w", err)
	}
	bigGamma, err := CombineSecp256k1PublicKeys(clientGammaCommitment, round1.GammaCommitment)
	if err != nil {
		return nil, fmt.Errorf("combine gamma commitments: %w", err)
	}
	return &EcdsaRound2{
		BigR:          bigR,
		BigGamma:      bigGamma,
		ClientPayload: append([]byte(nil), clientPayload...),
	}, nil
}

// EcdsaPresignRecord is the step-3 output persisted as the completed presign:
// everything the eventual signing round needs, plus a digest binding the run.
type EcdsaPresignRecord struct {
	SessionID string `json:"session_id"`
	KShare    []byte `json:"k_share"`
	BigR      []byte `json:"big_r"`
	Digest    []byte `json:"digest"`
}

// EcdsaPresignStep3 seals the presign run. The digest commits to both sides'
// round material so a swapped or replayed payload is detectable at sign time.
func EcdsaPresignStep3(sessionID string, round1 *EcdsaRound1, round2 *EcdsaRound2) *EcdsaPresignRecord {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write(round1.KCommitment)
	h.Write(round1.GammaCommitment)
	h.Write(round2.BigR)
	h.Write(round2.BigGamma)
	h.Write(round2.ClientPayload)

	return &EcdsaPresignRecord{
		SessionID: sessionID,
		KShare:    append([]byte(nil), round1.KShare...),
		BigR:      append([]byte(nil), round2.BigR...),
		Digest:    h.Sum(nil),
	}
}

// GeneratePreParams precomputes the safe-prime parameters a future ECDSA DKG
// run needs. This takes minutes of CPU; operators run it ahead of time.
func GeneratePreParams(timeout time.Duration) ([]byte, error) {
	params, err := keygen.GeneratePreParams(timeout)
	if err != nil {
		return nil, fmt.Errorf("generate pre-params: %w", err)
	}
	return json.Marshal(params)
}
