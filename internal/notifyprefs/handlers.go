package notifyprefs

import (
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers exposes notification-preference HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates notification-preference HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers preference and mute endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	router.GET("/notifications/preferences", h.Get)
	router.PATCH("/notifications/preferences", h.Update)
	router.GET("/notifications/muted", h.ListMuted)
	router.POST("/conversations/:id/mute", h.Mute)
	router.DELETE("/conversations/:id/mute", h.Unmute)
}

// Get handles GET /notifications/preferences.
func (h *Handlers) Get(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	prefs, err := h.svc.Get(c.Request.Context(), callerID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"preferences": prefs})
}

// Update handles PATCH /notifications/preferences.
func (h *Handlers) Update(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UpdateNotificationPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	prefs, err := h.svc.Update(c.Request.Context(), callerID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"preferences": prefs})
}

// Mute handles POST /conversations/:id/mute.
func (h *Handlers) Mute(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.MuteConversationRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.svc.Mute(c.Request.Context(), callerID, c.Param("id"), req.MutedUntil); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// Unmute handles DELETE /conversations/:id/mute.
func (h *Handlers) Unmute(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.Unmute(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// ListMuted handles GET /notifications/muted.
func (h *Handlers) ListMuted(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	muted, err := h.svc.ListMuted(c.Request.Context(), callerID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"muted": muted})
}
