package keys

import (
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the E2EE key-plane HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates key-plane HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers key-plane endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	keysGroup := router.Group("/keys")
	keysGroup.POST("/bundle", h.UploadBundle)
	keysGroup.GET("/bundle/:userId", h.FetchBundle)
	keysGroup.GET("/fingerprint/:userId", h.Fingerprint)
	keysGroup.POST("/prekeys", h.UploadPreKeys)
	keysGroup.GET("/prekeys/count", h.PreKeyCount)
	keysGroup.POST("/sender-key", h.DistributeSenderKey)
	keysGroup.GET("/sender-keys/:conversationId", h.SenderKeys)
	keysGroup.PUT("/backup", h.UploadKeyBackup)
	keysGroup.GET("/backup", h.GetKeyBackup)
	keysGroup.PUT("/backup/:conversationId", h.UploadConversationKeyBackup)
	keysGroup.GET("/backup/:conversationId", h.GetConversationKeyBackup)
}

// UploadBundle handles POST /keys/bundle.
func (h *Handlers) UploadBundle(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UploadBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.svc.UploadBundle(c.Request.Context(), userID, req); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// FetchBundle handles GET /keys/bundle/:userId.
func (h *Handlers) FetchBundle(c *gin.Context) {
	if _, err := authn.UserID(c); err != nil {
		httpx.Error(c, err)
		return
	}

	bundle, err := h.svc.FetchBundle(c.Request.Context(), c.Param("userId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"bundle": bundle})
}

// Fingerprint handles GET /keys/fingerprint/:userId.
func (h *Handlers) Fingerprint(c *gin.Context) {
	if _, err := authn.UserID(c); err != nil {
		httpx.Error(c, err)
		return
	}

	fp, err := h.svc.Fingerprint(c.Request.Context(), c.Param("userId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"fingerprint": fp})
}

// UploadPreKeys handles POST /keys/prekeys.
func (h *Handlers) UploadPreKeys(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UploadPreKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	count, err := h.svc.UploadPreKeys(c.Request.Context(), userID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"count": count})
}

// PreKeyCount handles GET /keys/prekeys/count.
func (h *Handlers) PreKeyCount(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	count, low, err := h.svc.PreKeyCount(c.Request.Context(), userID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"count": count, "low_watermark": low})
}

// DistributeSenderKey handles POST /keys/sender-key.
func (h *Handlers) DistributeSenderKey(c *gin.Context) {
	senderID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.DistributeSenderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.svc.DistributeSenderKey(c.Request.Context(), senderID, req); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// SenderKeys handles GET /keys/sender-keys/:conversationId.
func (h *Handlers) SenderKeys(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	senderKeys, err := h.svc.SenderKeys(c.Request.Context(), callerID, c.Param("conversationId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"sender_keys": senderKeys})
}

// UploadKeyBackup handles PUT /keys/backup.
func (h *Handlers) UploadKeyBackup(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UploadKeyBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.svc.UploadKeyBackup(c.Request.Context(), userID, req); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// GetKeyBackup handles GET /keys/backup.
func (h *Handlers) GetKeyBackup(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	backup, err := h.svc.GetKeyBackup(c.Request.Context(), userID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"backup": backup})
}

// UploadConversationKeyBackup handles PUT /keys/backup/:conversationId.
func (h *Handlers) UploadConversationKeyBackup(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.UploadConversationKeyBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	req.ConversationID = c.Param("conversationId")

	if err := h.svc.UploadConversationKeyBackup(c.Request.Context(), userID, req); err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{})
}

// GetConversationKeyBackup handles GET /keys/backup/:conversationId.
func (h *Handlers) GetConversationKeyBackup(c *gin.Context) {
	userID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	backup, err := h.svc.GetConversationKeyBackup(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"backup": backup})
}
