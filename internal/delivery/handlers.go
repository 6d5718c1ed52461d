package delivery

import (
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handlers exposes delivery-status HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates delivery HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers delivery endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	router.POST("/messages/:id/delivered", h.MarkDelivered)
	router.POST("/messages/read", h.MarkRead)
	router.POST("/conversations/:id/read", h.MarkConversationRead)
	router.GET("/messages/unread-count", h.UnreadCount)
}

// MarkDelivered handles POST /messages/:id/delivered.
func (h *Handlers) MarkDelivered(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.MarkDelivered(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// MarkRead handles POST /messages/read with an explicit id batch.
func (h *Handlers) MarkRead(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req struct {
		MessageIDs []string `json:"message_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), callerID, req.MessageIDs); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// MarkConversationRead handles POST /conversations/:id/read.
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.MarkConversationRead(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// UnreadCount handles GET /messages/unread-count.
func (h *Handlers) UnreadCount(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	count, err := h.svc.UnreadCount(c.Request.Context(), callerID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"unread": count})
}
