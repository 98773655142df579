package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/internal/orchestrator/service"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// NodeHandler serves the key-share node admin endpoints.
type NodeHandler struct {
	admin *service.NodeAdminService
}

func NewNodeHandler(admin *service.NodeAdminService) *NodeHandler {
	return &NodeHandler{admin: admin}
}

func (h *NodeHandler) Create(c *gin.Context) {
	var req service.CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, types.WrapE(types.ErrBadRequest, "invalid request body", err))
		return
	}
	node, err := h.admin.CreateNode(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(node))
}

func (h *NodeHandler) List(c *gin.Context) {
	nodes, err := h.admin.ListNodes(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(nodes))
}

func (h *NodeHandler) Activate(c *gin.Context) {
	if err := h.admin.ActivateNode(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{"id": c.Param("id"), "status": "ACTIVE"}))
}

func (h *NodeHandler) Deactivate(c *gin.Context) {
	if err := h.admin.DeactivateNode(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{"id": c.Param("id"), "status": "INACTIVE"}))
}

func (h *NodeHandler) Delete(c *gin.Context) {
	if err := h.admin.DeleteNode(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.OkResp(gin.H{"id": c.Param("id"), "status": "deleted"}))
}
