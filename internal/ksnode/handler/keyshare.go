// Package handler exposes the key-share node protocol over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/internal/ksnode/service"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// KeyShareHandler binds the v2 key-share endpoints.
type KeyShareHandler struct {
	svc *service.KeyShareService
}

func NewKeyShareHandler(svc *service.KeyShareService) *KeyShareHandler {
	return &KeyShareHandler{svc: svc}
}

func (h *KeyShareHandler) Get(c *gin.Context) {
	var req types.KeyShareGetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	shares, err := h.svc.GetV2(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(shares))
}

func (h *KeyShareHandler) Register(c *gin.Context) {
	var req types.KeyShareRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	regs, err := h.svc.RegisterV2(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(regs))
}

// RegisterEd25519 adds an ed25519 wallet for a user who already holds a
// secp256k1 one. Only the ed25519 entry is accepted.
func (h *KeyShareHandler) RegisterEd25519(c *gin.Context) {
	var req types.KeyShareRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	if req.Wallets.Ed25519 == nil || req.Wallets.Secp256k1 != nil {
		respondErr(c, types.E(types.ErrBadRequest, "exactly one ed25519 entry is required"))
		return
	}

	regs, err := h.svc.RegisterV2(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(regs))
}

func (h *KeyShareHandler) Reshare(c *gin.Context) {
	var req types.KeyShareRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	if err := h.svc.ReshareV2(c.Request.Context(), req); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{"reshared": true}))
}

// ReshareRegister stores shares on a node newly added to a wallet's node set.
// Registration semantics apply unchanged; idempotency is the caller's concern.
func (h *KeyShareHandler) ReshareRegister(c *gin.Context) {
	h.Register(c)
}

func (h *KeyShareHandler) Check(c *gin.Context) {
	var req types.KeyShareGetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	checks, err := h.svc.CheckV2(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(checks))
}

func respondErr(c *gin.Context, err error) {
	c.JSON(types.HTTPStatus(types.CodeOf(err)), types.ErrResp(err))
}
