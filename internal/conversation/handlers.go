package conversation

import (
	"net/http"
	"strconv"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers exposes conversation HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates conversation HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers conversation endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	conversations := router.Group("/conversations")
	conversations.GET("", h.List)
	conversations.POST("", h.Create)
	conversations.GET("/search", h.Search)
	conversations.GET("/:id", h.Get)
	conversations.PATCH("/:id", h.Update)
	conversations.POST("/:id/members", h.AddMembers)
	conversations.DELETE("/:id/members/:userId", h.RemoveMember)
	conversations.POST("/:id/leave", h.Leave)
}

// Create handles POST /conversations.
func (h *Handlers) Create(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	conv, err := h.svc.Create(c.Request.Context(), callerID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"conversation": conv})
}

// Get handles GET /conversations/:id.
func (h *Handlers) Get(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"conversation": conv})
}

// List handles GET /conversations.
func (h *Handlers) List(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var cursor *string
	if v := c.Query("cursor"); v != "" {
		cursor = &v
	}

	page, err := h.svc.List(c.Request.Context(), callerID, limit, cursor)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"page": page})
}

// Update handles PATCH /conversations/:id.
func (h *Handlers) Update(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	conv, err := h.svc.Update(c.Request.Context(), c.Param("id"), callerID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"conversation": conv})
}

// AddMembers handles POST /conversations/:id/members.
func (h *Handlers) AddMembers(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req struct {
		MemberIDs []string `json:"member_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.svc.AddMembers(c.Request.Context(), c.Param("id"), callerID, req.MemberIDs); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// RemoveMember handles DELETE /conversations/:id/members/:userId.
func (h *Handlers) RemoveMember(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.RemoveMember(c.Request.Context(), c.Param("id"), callerID, c.Param("userId")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// Leave handles POST /conversations/:id/leave.
func (h *Handlers) Leave(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.RemoveMember(c.Request.Context(), c.Param("id"), callerID, callerID); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// Search handles GET /conversations/search.
func (h *Handlers) Search(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	results, err := h.svc.Search(c.Request.Context(), callerID, c.Query("q"), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"conversations": results})
}
