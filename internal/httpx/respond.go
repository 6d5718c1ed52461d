// Package httpx holds the one-line gin response helper every engine's
// handlers share, so error translation stays consistent without each
// package reimplementing apperr -> JSON mapping.
package httpx

import (
	"histeeria-backend/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Error writes an AppError (or any error, wrapped as Internal) as JSON
// with the matching HTTP status.
func Error(c *gin.Context, err error) {
	ae := apperr.As(err)
	c.JSON(ae.HTTPStatus(), gin.H{"success": false, "message": ae.Message, "details": ae.Details})
}

// OK writes a 200 JSON body with "success": true merged in.
func OK(c *gin.Context, data gin.H) {
	data["success"] = true
	c.JSON(200, data)
}
