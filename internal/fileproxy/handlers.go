// Package fileproxy streams message attachments and thumbnails from
// object storage to authenticated clients, keeping upstream bucket
// credentials and URLs off the wire entirely.
package fileproxy

import (
	"io"
	"log"
	"net/http"
	"strings"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/config"
	"histeeria-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the authenticated file-proxy endpoint.
type Handlers struct {
	storage *storage.StorageService
	jwtSvc  *authn.JWTService
	cfg     config.ObjectStoreConfig
}

// NewHandlers creates the file-proxy HTTP handlers.
func NewHandlers(storageSvc *storage.StorageService, jwtSvc *authn.JWTService, cfg config.ObjectStoreConfig) *Handlers {
	return &Handlers{storage: storageSvc, jwtSvc: jwtSvc, cfg: cfg}
}

// SetupRoutes registers the proxy endpoint.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	router.GET("/files/*key", h.ServeFile)
}

// ServeFile streams an object to an authenticated caller. The bearer
// token may arrive as a header or a query parameter since <img>/<audio>
// tags cannot set headers.
func (h *Handlers) ServeFile(c *gin.Context) {
	token := c.GetHeader("Authorization")
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = token[7:]
	} else {
		token = ""
	}
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "no authentication token provided"})
		return
	}

	if _, err := h.jwtSvc.ValidateToken(token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid authentication token"})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "://") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid file key"})
		return
	}

	reader, obj, err := h.storage.Download(c.Request.Context(), key, nil)
	if err != nil {
		log.Printf("[FileProxy] download failed for %s: %v", key, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "file not found"})
		return
	}
	defer reader.Close()

	contentType := "application/octet-stream"
	if obj != nil && obj.ContentType != "" {
		contentType = obj.ContentType
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		log.Printf("[FileProxy] stream failed for %s: %v", key, err)
	}
}
