package authn

import (
	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Claims returns the validated claims Middleware attached to the request.
func Claims(c *gin.Context) (*models.JWTClaims, error) {
	v, exists := c.Get("claims")
	if !exists {
		return nil, apperr.ErrUnauthenticated
	}
	claims, ok := v.(*models.JWTClaims)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	return claims, nil
}

// ExternalUserID is a shorthand for Claims(c).ExternalID(), the raw
// identity-provider id before it was resolved to a local user row.
func ExternalUserID(c *gin.Context) (string, error) {
	claims, err := Claims(c)
	if err != nil {
		return "", err
	}
	return claims.ExternalID(), nil
}

// UserID returns the caller's local user id, resolved and stabilized by
// Middleware via the identity gateway. Every engine operates in terms of
// this id, not the external claim.
func UserID(c *gin.Context) (string, error) {
	v, exists := c.Get("user_id")
	if !exists {
		return "", apperr.ErrUnauthenticated
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", apperr.ErrUnauthenticated
	}
	return id, nil
}
