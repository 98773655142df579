package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	googleJWKSEndpoint = "https://www.googleapis.com/oauth2/v3/certs"
	googleIssuer       = "https://accounts.google.com"
)

type googleClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// GoogleVerifier validates Google ID tokens against Google's published
// signing keys.
type GoogleVerifier struct {
	clientID string
	keys     *JWKSCache
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		keys:     NewJWKSCache(googleJWKSEndpoint, time.Hour, nil),
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, authType AuthType, idToken string) (Identity, error) {
	if authType != AuthTypeGoogle {
		return Identity{}, fmt.Errorf("google verifier cannot verify %q tokens", authType)
	}

	claims := &googleClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("id token has no kid header")
			}
			key, err := v.keys.Key(ctx, kid)
			if err != nil {
				return nil, err
			}
			return rsaPublicKey(key)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(googleIssuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("verify google id token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("google id token is not valid")
	}

	return Identity{
		AuthType:       AuthTypeGoogle,
		UserIdentifier: claims.Subject,
		Email:          claims.Email,
	}, nil
}

func rsaPublicKey(key JWK) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, fmt.Errorf("signing key %q is not RSA", key.Kid)
	}
	n, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}

// MultiVerifier dispatches to a per-provider verifier.
type MultiVerifier struct {
	verifiers map[AuthType]Verifier
}

func NewMultiVerifier(verifiers map[AuthType]Verifier) *MultiVerifier {
	return &MultiVerifier{verifiers: verifiers}
}

func (m *MultiVerifier) Verify(ctx context.Context, authType AuthType, idToken string) (Identity, error) {
	v, ok := m.verifiers[authType]
	if !ok {
		return Identity{}, fmt.Errorf("no verifier configured for auth type %q", authType)
	}
	return v.Verify(ctx, authType, idToken)
}
