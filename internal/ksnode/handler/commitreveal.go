package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/internal/ksnode/service"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// CommitRevealHandler binds the commit-reveal handshake endpoints.
type CommitRevealHandler struct {
	svc *service.CommitRevealService
}

func NewCommitRevealHandler(svc *service.CommitRevealService) *CommitRevealHandler {
	return &CommitRevealHandler{svc: svc}
}

func (h *CommitRevealHandler) Commit(c *gin.Context) {
	var req types.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	resp, err := h.svc.Commit(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(resp))
}

func (h *CommitRevealHandler) Reveal(c *gin.Context) {
	var req types.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}

	sess, err := h.svc.Reveal(c.Request.Context(), req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{
		"session_id":     sess.SessionID,
		"operation_type": sess.OperationType,
		"state":          sess.State,
	}))
}
