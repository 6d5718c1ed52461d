package poll

import (
	"net/http"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers exposes poll HTTP endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates poll HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// SetupRoutes registers poll endpoints under a protected group.
func (h *Handlers) SetupRoutes(router *gin.RouterGroup) {
	router.POST("/polls", h.Create)
	router.GET("/polls/:id/results", h.Results)
	router.POST("/polls/:id/vote", h.Vote)
	router.POST("/polls/:id/close", h.Close)
}

// Create handles POST /polls.
func (h *Handlers) Create(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	created, err := h.svc.Create(c.Request.Context(), callerID, req)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"poll": created})
}

// Vote handles POST /polls/:id/vote.
func (h *Handlers) Vote(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req models.VotePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	results, err := h.svc.Vote(c.Request.Context(), callerID, c.Param("id"), req.OptionIDs)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"results": results})
}

// Close handles POST /polls/:id/close.
func (h *Handlers) Close(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	closed, err := h.svc.Close(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"poll": closed})
}

// Results handles GET /polls/:id/results.
func (h *Handlers) Results(c *gin.Context) {
	callerID, err := authn.UserID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	results, err := h.svc.Results(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}

	httpx.OK(c, gin.H{"results": results})
}
