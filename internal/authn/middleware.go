package authn

import (
	"log"
	"net/http"
	"strings"
	"time"

	"histeeria-backend/internal/identity"
	"histeeria-backend/internal/models"
	"histeeria-backend/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	halfLife = 15 * 24 * time.Hour
)

// Middleware validates the bearer token on every request, refreshing it
// on the client's behalf once it is more than halfway to expiry. It also
// resolves the caller's local user row through the identity gateway, so
// every downstream handler works against a stable local user id instead
// of the raw external claim.
func Middleware(svc *JWTService, identitySvc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extract(c, svc)
		if err != nil {
			respondUnauthenticated(c, err)
			return
		}

		user, err := identitySvc.Resolve(c.Request.Context(), claims)
		if err != nil {
			log.Printf("[Auth] identity resolution failed for %s: %v", claims.ExternalID(), err)
			respondUnauthenticated(c, apperr.ErrUnauthenticated)
			return
		}

		c.Set("claims", claims)
		c.Set("user_external_id", claims.ExternalID())
		c.Set("user_id", user.ID)

		if claims.ExpiresAt != nil {
			if remaining := time.Until(claims.ExpiresAt.Time); remaining < halfLife {
				if renewed, err := svc.Refresh(claims); err == nil {
					c.Header("X-New-Token", renewed)
				}
			}
		}

		c.Next()
	}
}

func extract(c *gin.Context, svc *JWTService) (*models.JWTClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, apperr.ErrUnauthenticated
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, apperr.ErrInvalidToken
	}

	claims, err := svc.ValidateToken(parts[1])
	if err != nil {
		return nil, apperr.ErrInvalidToken
	}
	return claims, nil
}

func respondUnauthenticated(c *gin.Context, err error) {
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
	c.Abort()
}
