package mpc

import (
	"testing"

	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructEd25519KeyPackage_RoundTrip(t *testing.T) {
	signing, verifying, err := GenerateEd25519Share()
	require.NoError(t, err)

	kp, err := ReconstructEd25519KeyPackage(1, signing, verifying, verifying)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), kp.Identifier)
	assert.Equal(t, signing, kp.SigningShare)
	assert.Equal(t, verifying, kp.VerifyingShare)
}

func TestReconstructEd25519KeyPackage_TamperedVerifyingShare(t *testing.T) {
	signing, verifying, err := GenerateEd25519Share()
	require.NoError(t, err)

	tampered := append([]byte(nil), verifying...)
	tampered[0] ^= 0x01

	_, err = ReconstructEd25519KeyPackage(1, signing, tampered, verifying)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestReconstructEd25519KeyPackage_BadLengths(t *testing.T) {
	signing, verifying, err := GenerateEd25519Share()
	require.NoError(t, err)

	_, err = ReconstructEd25519KeyPackage(1, signing[:16], verifying, verifying)
	assert.Error(t, err)

	_, err = ReconstructEd25519KeyPackage(1, signing, verifying[:16], verifying)
	assert.Error(t, err)
}

func TestRound1_FreshNoncesPerCall(t *testing.T) {
	signing, verifying, err := GenerateEd25519Share()
	require.NoError(t, err)
	kp, err := ReconstructEd25519KeyPackage(7, signing, verifying, verifying)
	require.NoError(t, err)

	n1, c1, err := kp.Round1()
	require.NoError(t, err)
	n2, c2, err := kp.Round1()
	require.NoError(t, err)

	assert.Equal(t, uint16(7), c1.Identifier)
	assert.NotEqual(t, n1.Hiding, n2.Hiding)
	assert.NotEqual(t, n1.Binding, n2.Binding)
	assert.NotEqual(t, c1.HidingCommitment, c2.HidingCommitment)
	assert.NotEqual(t, c1.BindingCommitment, c2.BindingCommitment)

	// Commitments are valid curve points.
	_, err = edwards.ParsePubKey(c1.HidingCommitment)
	assert.NoError(t, err)
	_, err = edwards.ParsePubKey(c1.BindingCommitment)
	assert.NoError(t, err)
}

func TestCombineEd25519PublicKeys(t *testing.T) {
	_, clientPub, err := GenerateEd25519Share()
	require.NoError(t, err)
	_, serverPub, err := GenerateEd25519Share()
	require.NoError(t, err)

	group, err := CombineEd25519PublicKeys(clientPub, serverPub)
	require.NoError(t, err)
	_, err = edwards.ParsePubKey(group)
	require.NoError(t, err)

	// Point addition is commutative.
	swapped, err := CombineEd25519PublicKeys(serverPub, clientPub)
	require.NoError(t, err)
	assert.Equal(t, group, swapped)

	// And the sum differs from either input.
	assert.NotEqual(t, clientPub, group)
	assert.NotEqual(t, serverPub, group)
}

func TestCombineEd25519PublicKeys_InvalidInput(t *testing.T) {
	_, serverPub, err := GenerateEd25519Share()
	require.NoError(t, err)

	_, err = CombineEd25519PublicKeys([]byte("not a point"), serverPub)
	assert.Error(t, err)
}
