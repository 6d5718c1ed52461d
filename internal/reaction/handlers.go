package reaction

import (
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handlers exposes reaction HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates reaction HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers reaction endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	messages := router.Group("/messages")
	messages.GET("/:id/reactions", h.List)
	messages.POST("/:id/reactions", h.Add)
	messages.DELETE("/:id/reactions", h.Remove)
}

// Add handles POST /messages/:id/reactions.
func (h *Handlers) Add(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	reaction, err := h.svc.Add(c.Request.Context(), callerID, c.Param("id"), req.Emoji)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"reaction": reaction})
}

// Remove handles DELETE /messages/:id/reactions.
func (h *Handlers) Remove(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.Remove(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// List handles GET /messages/:id/reactions.
func (h *Handlers) List(c *gin.Context) {
	if _, err := authn.UserID(c); err != nil {
		httpx.Error(c, err)
		return
	}

	reactions, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"reactions": reactions})
}
