package message

import (
	"io"
	"net/http"
	"strconv"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers exposes message HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates message HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers message endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	conversations := router.Group("/conversations")
	conversations.GET("/:id/messages", h.List)
	conversations.POST("/:id/messages", h.Send)
	conversations.POST("/:id/messages/upload", h.Upload)

	messages := router.Group("/messages")
	messages.GET("/search", h.Search)
	messages.PATCH("/:id", h.Edit)
	messages.DELETE("/:id", h.DeleteForEveryone)
	messages.DELETE("/:id/for-me", h.DeleteForMe)
}

// Send handles POST /conversations/:id/messages.
func (h *Handlers) Send(c *gin.Context) {
	senderID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	req.ConversationID = c.Param("id")

	msg, err := h.svc.Send(c.Request.Context(), senderID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"message": msg})
}

// Edit handles PATCH /messages/:id.
func (h *Handlers) Edit(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	msg, err := h.svc.Edit(c.Request.Context(), callerID, c.Param("id"), req.Content)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"message": msg})
}

// DeleteForEveryone handles DELETE /messages/:id.
func (h *Handlers) DeleteForEveryone(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.DeleteForEveryone(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// DeleteForMe handles DELETE /messages/:id/for-me.
func (h *Handlers) DeleteForMe(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.svc.DeleteForMe(c.Request.Context(), callerID, c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// List handles GET /conversations/:id/messages.
func (h *Handlers) List(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var cursor *string
	if v := c.Query("cursor"); v != "" {
		cursor = &v
	}

	page, err := h.svc.List(c.Request.Context(), callerID, c.Param("id"), limit, cursor)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"page": page})
}

// Search handles GET /messages/search.
func (h *Handlers) Search(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	req := models.SearchMessagesRequest{
		Query: c.Query("q"),
		Limit: limit,
	}
	if v := c.Query("conversation_id"); v != "" {
		req.ConversationID = &v
	}

	page, err := h.svc.Search(c.Request.Context(), callerID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"page": page})
}

// Upload handles POST /conversations/:id/messages/upload. The uploaded
// file is stored and a FileUploadResult returned; sending the actual
// message (with the resulting object key in its metadata) is a
// separate Send call so a failed send never orphans a charge against
// the conversation's message stream.
func (h *Handlers) Upload(c *gin.Context) {
	senderID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to open upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to read upload"})
		return
	}

	msgType := models.MessageType(c.DefaultPostForm("type", string(models.MessageTypeFile)))

	result, err := h.svc.Upload(c.Request.Context(), senderID, c.Param("id"), fileHeader.Filename, data, msgType)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"file": result})
}
