// Package handler exposes the orchestrator's protocol surface under /tss/v1/.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/types"
)

const (
	headerAuthType = "X-Auth-Type"

	ctxClaims   = "session_claims"
	ctxIdentity = "oauth_identity"
)

func bearerToken(c *gin.Context) (string, bool) {
	return strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// requireSession validates the orchestrator session token and stashes its
// claims on the request context.
func requireSession(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "missing bearer token")))
			return
		}
		claims, err := tokens.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "session token rejected")))
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// requireOAuth verifies a third-party identity token from the OAuth headers
// and stashes the resolved identity on the request context.
func requireOAuth(verifier oauth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, ok := bearerToken(c)
		if !ok || idToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "missing identity token")))
			return
		}
		authType, err := oauth.ParseAuthType(c.GetHeader(headerAuthType))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				types.ErrResp(types.E(types.ErrBadRequest, "unsupported auth type")))
			return
		}
		identity, err := verifier.Verify(c.Request.Context(), authType, idToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "identity token rejected")))
			return
		}
		c.Set(ctxIdentity, identity)
		c.Next()
	}
}

func sessionClaims(c *gin.Context) *auth.SessionClaims {
	claims, _ := c.MustGet(ctxClaims).(*auth.SessionClaims)
	return claims
}

func oauthIdentity(c *gin.Context) oauth.Identity {
	identity, _ := c.MustGet(ctxIdentity).(oauth.Identity)
	return identity
}

func respondErr(c *gin.Context, err error) {
	c.JSON(types.HTTPStatus(types.CodeOf(err)), types.ErrResp(err))
}
