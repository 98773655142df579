package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// SessionClaims is the payload of an orchestrator session token issued after
// sign-in or keygen.
type SessionClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	WalletID string `json:"wallet_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed session tokens.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenService{secret: []byte(secret), expiry: expiry}, nil
}

// Issue signs a fresh session token for the given identity.
func (s *TokenService) Issue(userID, email, walletID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:   userID,
		Email:    email,
		WalletID: walletID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, including expiry.
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyExpired validates the signature and shape of a token while ignoring
// its expiry. Backs the silent sign-in path: an expired-but-authentic token
// may be exchanged for a fresh one.
func (s *TokenService) VerifyExpired(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh exchanges an authentic (possibly expired) token for a fresh one
// with the same identity.
func (s *TokenService) Refresh(tokenString string) (string, error) {
	claims, err := s.VerifyExpired(tokenString)
	if err != nil {
		return "", err
	}
	return s.Issue(claims.UserID, claims.Email, claims.WalletID)
}

func (s *TokenService) keyFunc(_ *jwt.Token) (any, error) {
	return s.secret, nil
}
