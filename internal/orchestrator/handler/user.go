package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/internal/orchestrator/service"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// UserHandler serves the identity endpoints: check, sign-in, silent sign-in
// and reshare.
type UserHandler struct {
	users    *service.UserService
	reshares *service.ReshareService
}

func NewUserHandler(users *service.UserService, reshares *service.ReshareService) *UserHandler {
	return &UserHandler{users: users, reshares: reshares}
}

type checkUserRequest struct {
	Email    string `json:"email" binding:"required"`
	AuthType string `json:"auth_type,omitempty"`
}

func (h *UserHandler) Check(c *gin.Context) {
	var req checkUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.users.CheckUser(c.Request.Context(), req.Email)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

func (h *UserHandler) SignIn(c *gin.Context) {
	idToken, ok := bearerToken(c)
	if !ok || idToken == "" {
		respondErr(c, types.E(types.ErrUnauthorized, "missing identity token"))
		return
	}
	result, err := h.users.SignIn(c.Request.Context(), c.GetHeader(headerAuthType), idToken)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

func (h *UserHandler) SignInSilently(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok || token == "" {
		respondErr(c, types.E(types.ErrUnauthorized, "missing bearer token"))
		return
	}
	result, err := h.users.SignInSilently(c.Request.Context(), token)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

func (h *UserHandler) Reshare(c *gin.Context) {
	var req service.ReshareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.reshares.Reshare(c.Request.Context(), oauthIdentity(c), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}
