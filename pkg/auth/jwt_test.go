package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc, err := NewTokenService("unit-test-secret", time.Hour)
	require.NoError(t, err)

	token, err := svc.Issue("user-1", "a@b.com", "wallet-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "wallet-1", claims.WalletID)
}

func TestTokenService_VerifyWrongSecret(t *testing.T) {
	svc1, err := NewTokenService("secret-one", time.Hour)
	require.NoError(t, err)
	svc2, err := NewTokenService("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := svc1.Issue("user-1", "a@b.com", "")
	require.NoError(t, err)

	_, err = svc2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	svc, err := NewTokenService("unit-test-secret", -time.Minute)
	require.NoError(t, err)

	token, err := svc.Issue("user-1", "a@b.com", "wallet-1")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// The expired token is still authentic, so the silent path accepts it.
	claims, err := svc.VerifyExpired(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestTokenService_Refresh(t *testing.T) {
	expired, err := NewTokenService("unit-test-secret", -time.Minute)
	require.NoError(t, err)

	token, err := expired.Issue("user-1", "a@b.com", "wallet-1")
	require.NoError(t, err)

	fresh, err := NewTokenService("unit-test-secret", time.Hour)
	require.NoError(t, err)

	refreshed, err := fresh.Refresh(token)
	require.NoError(t, err)

	claims, err := fresh.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", claims.WalletID)
}

func TestTokenService_RefreshGarbage(t *testing.T) {
	svc, err := NewTokenService("unit-test-secret", time.Hour)
	require.NoError(t, err)

	_, err = svc.Refresh("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.Error(t, err)
}
