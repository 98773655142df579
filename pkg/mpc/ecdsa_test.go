package mpc

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecp256k1Share(t *testing.T) {
	signing, verifying, err := GenerateSecp256k1Share()
	require.NoError(t, err)
	assert.Len(t, signing, 32)
	assert.Len(t, verifying, 33)

	derived, err := DeriveSecp256k1VerifyingShare(signing)
	require.NoError(t, err)
	assert.Equal(t, verifying, derived)
}

func TestDeriveSecp256k1VerifyingShare_BadLength(t *testing.T) {
	_, err := DeriveSecp256k1VerifyingShare([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCombineSecp256k1PublicKeys(t *testing.T) {
	_, clientPub, err := GenerateSecp256k1Share()
	require.NoError(t, err)
	_, serverPub, err := GenerateSecp256k1Share()
	require.NoError(t, err)

	group, err := CombineSecp256k1PublicKeys(clientPub, serverPub)
	require.NoError(t, err)
	_, err = secp256k1.ParsePubKey(group)
	require.NoError(t, err)

	swapped, err := CombineSecp256k1PublicKeys(serverPub, clientPub)
	require.NoError(t, err)
	assert.Equal(t, group, swapped)

	_, err = CombineSecp256k1PublicKeys([]byte("junk"), serverPub)
	assert.Error(t, err)
}

func TestEcdsaPresignSteps(t *testing.T) {
	server1, err := EcdsaPresignStep1()
	require.NoError(t, err)
	assert.Len(t, server1.KShare, 32)
	assert.Len(t, server1.KCommitment, 33)

	client1, err := EcdsaPresignStep1()
	require.NoError(t, err)

	round2, err := EcdsaPresignStep2(server1, client1.KCommitment, client1.GammaCommitment, []byte("mta payload"))
	require.NoError(t, err)
	assert.Len(t, round2.BigR, 33)
	assert.Equal(t, []byte("mta payload"), round2.ClientPayload)

	// BigR is the sum of both k commitments, independent of who adds.
	expectedR, err := CombineSecp256k1PublicKeys(server1.KCommitment, client1.KCommitment)
	require.NoError(t, err)
	assert.Equal(t, expectedR, round2.BigR)

	record := EcdsaPresignStep3("sess-1", server1, round2)
	assert.Equal(t, "sess-1", record.SessionID)
	assert.Equal(t, server1.KShare, record.KShare)
	assert.Equal(t, round2.BigR, record.BigR)
	assert.Len(t, record.Digest, 32)

	// The digest binds the session id.
	other := EcdsaPresignStep3("sess-2", server1, round2)
	assert.NotEqual(t, record.Digest, other.Digest)
}

func TestEcdsaPresignStep2_RejectsBadCommitments(t *testing.T) {
	server1, err := EcdsaPresignStep1()
	require.NoError(t, err)

	_, err = EcdsaPresignStep2(server1, []byte("bad"), server1.GammaCommitment, nil)
	assert.Error(t, err)
}
