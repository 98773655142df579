package service

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/chainapsis/oko-tss/internal/orchestrator/model"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// UserService answers identity questions: existence checks, sign-in and the
// silent token refresh.
type UserService struct {
	registry  registry.Registry
	tokens    *auth.TokenService
	verifier  oauth.Verifier
	threshold int
}

func NewUserService(reg registry.Registry, tokens *auth.TokenService, verifier oauth.Verifier, threshold int) *UserService {
	return &UserService{registry: reg, tokens: tokens, verifier: verifier, threshold: threshold}
}

// NodeMeta describes one key-share node in a check response.
type NodeMeta struct {
	Name         string `json:"name"`
	Endpoint     string `json:"endpoint"`
	WalletStatus string `json:"wallet_status"`
}

// KeyshareNodeMeta is the quorum topology a client needs before operating.
type KeyshareNodeMeta struct {
	Threshold int        `json:"threshold"`
	Nodes     []NodeMeta `json:"nodes"`
}

// CheckUserResult reports existence plus the reshare posture of the user's
// wallet across the active node set.
type CheckUserResult struct {
	Exists                    bool             `json:"exists"`
	KeyshareNodeMeta          KeyshareNodeMeta `json:"keyshare_node_meta"`
	NeedsReshare              bool             `json:"needs_reshare"`
	ReshareReasons            []string         `json:"reshare_reasons,omitempty"`
	ActiveNodesBelowThreshold bool             `json:"active_nodes_below_threshold"`
}

// CheckUser reports whether the email is known and, if so, how the user's
// wallet sits across the active node set. An unknown user is not an error.
func (s *UserService) CheckUser(ctx context.Context, email string) (*CheckUserResult, error) {
	nodes, err := s.registry.ListActiveNodes(ctx)
	if err != nil {
		return nil, err
	}

	result := &CheckUserResult{
		KeyshareNodeMeta: KeyshareNodeMeta{Threshold: s.threshold},
	}

	user, err := s.registry.FindUserByEmail(ctx, email)
	if err != nil {
		if types.IsCode(err, types.ErrUserNotFound) {
			result.KeyshareNodeMeta.Nodes = lo.Map(nodes, func(n model.KeyShareNode, _ int) NodeMeta {
				return NodeMeta{Name: n.Name, Endpoint: n.ServerURL, WalletStatus: model.EdgeNotRegistered}
			})
			result.ActiveNodesBelowThreshold = len(nodes) < s.threshold
			return result, nil
		}
		return nil, err
	}
	result.Exists = true

	wallet, err := s.activeWallet(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	edgeStatus := map[string]string{}
	if wallet != nil {
		edges, err := s.registry.ListWalletNodes(ctx, wallet.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			edgeStatus[e.NodeID] = e.Status
		}
	}

	activeEdges := 0
	for _, n := range nodes {
		status, ok := edgeStatus[n.ID]
		if !ok {
			status = model.EdgeNotRegistered
		}
		result.KeyshareNodeMeta.Nodes = append(result.KeyshareNodeMeta.Nodes, NodeMeta{
			Name:         n.Name,
			Endpoint:     n.ServerURL,
			WalletStatus: status,
		})

		if wallet == nil {
			continue
		}
		switch status {
		case model.EdgeActive:
			activeEdges++
		case model.EdgeUnrecoverable:
			result.NeedsReshare = true
			result.ReshareReasons = appendUnique(result.ReshareReasons, model.ReshareReasonDataLoss)
		case model.EdgeNotRegistered:
			result.NeedsReshare = true
			result.ReshareReasons = appendUnique(result.ReshareReasons, model.ReshareReasonNewNodeAdded)
		}
	}
	result.ActiveNodesBelowThreshold = wallet != nil && activeEdges < s.threshold

	return result, nil
}

// SignInResult pairs a session token with the signed-in identity.
type SignInResult struct {
	Token string     `json:"token"`
	User  SignInUser `json:"user"`
}

type SignInUser struct {
	Email     string `json:"email"`
	WalletID  string `json:"wallet_id,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// SignIn verifies the third-party identity token and issues a session token
// for the resolved user.
func (s *UserService) SignIn(ctx context.Context, authType, idToken string) (*SignInResult, error) {
	at, err := oauth.ParseAuthType(authType)
	if err != nil {
		return nil, types.WrapE(types.ErrBadRequest, "unsupported auth type", err)
	}
	identity, err := s.verifier.Verify(ctx, at, idToken)
	if err != nil {
		return nil, types.WrapE(types.ErrUnauthorized, "identity token rejected", err)
	}

	user, err := s.registry.FindUserByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	wallet, err := s.activeWallet(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	walletID, publicKey := "", ""
	if wallet != nil {
		walletID, publicKey = wallet.ID, wallet.PublicKey
	}

	token, err := s.tokens.Issue(user.ID, user.Email, walletID)
	if err != nil {
		return nil, types.WrapE(types.ErrUnknown, "issue session token", err)
	}
	return &SignInResult{
		Token: token,
		User:  SignInUser{Email: user.Email, WalletID: walletID, PublicKey: publicKey},
	}, nil
}

// SignInSilently exchanges an authentic but possibly expired session token
// for a fresh one. A token that fails signature or shape checks is rejected.
func (s *UserService) SignInSilently(_ context.Context, bearerToken string) (*SignInResult, error) {
	claims, err := s.tokens.VerifyExpired(bearerToken)
	if err != nil {
		return nil, types.WrapE(types.ErrUnauthorized, "session token rejected", err)
	}
	token, err := s.tokens.Refresh(bearerToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return nil, types.WrapE(types.ErrUnauthorized, "session token rejected", err)
		}
		return nil, types.WrapE(types.ErrUnknown, "refresh session token", err)
	}
	return &SignInResult{
		Token: token,
		User:  SignInUser{Email: claims.Email, WalletID: claims.WalletID},
	}, nil
}

// activeWallet returns the user's first active wallet, or nil without error
// when the user has none yet.
func (s *UserService) activeWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	wallets, err := s.registry.ListWalletsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range wallets {
		if wallets[i].Status == model.StatusActive {
			return &wallets[i], nil
		}
	}
	return nil, nil
}

func appendUnique(list []string, v string) []string {
	if lo.Contains(list, v) {
		return list
	}
	return append(list, v)
}
