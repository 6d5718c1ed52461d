package realtime

import (
	"log"
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/identity"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handlers exposes the WebSocket upgrade endpoint.
type Handlers struct {
	manager     *Manager
	jwtSvc      *authn.JWTService
	identitySvc *identity.Service
}

// NewHandlers creates the realtime HTTP handlers.
func NewHandlers(manager *Manager, jwtSvc *authn.JWTService, identitySvc *identity.Service) *Handlers {
	return &Handlers{manager: manager, jwtSvc: jwtSvc, identitySvc: identitySvc}
}

// HandleWebSocket upgrades an authenticated request to a WebSocket connection.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	log.Printf("[Realtime] upgrade request from %s", c.ClientIP())

	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
	}

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "no authentication token provided"})
		return
	}

	claims, err := h.jwtSvc.ValidateToken(token)
	if err != nil {
		log.Printf("[Realtime] invalid token: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid authentication token"})
		return
	}

	user, err := h.identitySvc.Resolve(c.Request.Context(), claims)
	if err != nil {
		log.Printf("[Realtime] identity resolution failed for %s: %v", claims.ExternalID(), err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid authentication token"})
		return
	}
	userID := user.ID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Realtime] failed to upgrade connection: %v", err)
		return
	}

	connection := h.manager.Register(userID, conn)
	log.Printf("[Realtime] user %s connected (connection %s)", userID, connection.ID)
}

// SetupRoutes registers the realtime endpoint.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	router.GET("/ws", h.HandleWebSocket)
}

// GetStats reports connection counts for monitoring.
func (h *Handlers) GetStats(c *gin.Context) {
	h.manager.mu.RLock()
	totalConnections := 0
	connectedUsers := make([]string, 0, len(h.manager.connections))
	for userID, conns := range h.manager.connections {
		totalConnections += len(conns)
		connectedUsers = append(connectedUsers, userID)
	}
	h.manager.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"total_connections": totalConnections,
		"connected_users":   connectedUsers,
	})
}
