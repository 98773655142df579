package oauth

import (
	"context"
	"fmt"
	"slices"
)

// AuthType names a supported third-party identity provider.
type AuthType string

const (
	AuthTypeGoogle   AuthType = "google"
	AuthTypeAuth0    AuthType = "auth0"
	AuthTypeTelegram AuthType = "telegram"
	AuthTypeDiscord  AuthType = "discord"
	AuthTypeX        AuthType = "x"
)

var supportedAuthTypes = []AuthType{
	AuthTypeGoogle, AuthTypeAuth0, AuthTypeTelegram, AuthTypeDiscord, AuthTypeX,
}

// ParseAuthType validates a provider name received at a boundary.
func ParseAuthType(s string) (AuthType, error) {
	at := AuthType(s)
	if !slices.Contains(supportedAuthTypes, at) {
		return "", fmt.Errorf("unsupported auth type %q", s)
	}
	return at, nil
}

// Identity is the stable identifier pair the rest of the system keys users
// by. UserIdentifier is provider-scoped (a Google sub, a Telegram user id).
type Identity struct {
	AuthType       AuthType
	UserIdentifier string
	Email          string
}

// Verifier validates a third-party identity token and resolves the caller's
// stable identity. Implementations live outside the core; the core consumes
// this as a capability.
type Verifier interface {
	Verify(ctx context.Context, authType AuthType, idToken string) (Identity, error)
}
