package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/internal/orchestrator/service"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// TSSHandler serves keygen, presign and session control.
type TSSHandler struct {
	keygen  *service.KeygenService
	presign *service.PresignService
}

func NewTSSHandler(keygen *service.KeygenService, presign *service.PresignService) *TSSHandler {
	return &TSSHandler{keygen: keygen, presign: presign}
}

func (h *TSSHandler) Keygen(c *gin.Context) {
	var req service.KeygenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.keygen.RunKeygen(c.Request.Context(), oauthIdentity(c), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

// KeygenEd25519 is Keygen with the curve fixed.
func (h *TSSHandler) KeygenEd25519(c *gin.Context) {
	var req service.KeygenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	req.CurveType = string(types.CurveEd25519)
	result, err := h.keygen.RunKeygen(c.Request.Context(), oauthIdentity(c), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

type presignRequest struct {
	WalletID string `json:"wallet_id" binding:"required"`
}

func (h *TSSHandler) PresignEd25519(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.presign.RunPresignEd25519(c.Request.Context(), sessionClaims(c).Email, req.WalletID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

func (h *TSSHandler) PresignStep1(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.presign.PresignStep1(c.Request.Context(), sessionClaims(c).Email, req.WalletID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

func (h *TSSHandler) PresignStep2(c *gin.Context) {
	var req service.PresignStep2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.presign.PresignStep2(c.Request.Context(), sessionClaims(c).Email, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

type presignStep3Request struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (h *TSSHandler) PresignStep3(c *gin.Context) {
	var req presignStep3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	result, err := h.presign.PresignStep3(c.Request.Context(), sessionClaims(c).Email, req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(result))
}

type abortRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (h *TSSHandler) AbortSession(c *gin.Context) {
	var req abortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	if err := h.presign.AbortSession(c.Request.Context(), req.SessionID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{"session_id": req.SessionID, "status": "aborted"}))
}
