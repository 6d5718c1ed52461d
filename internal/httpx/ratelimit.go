package httpx

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/cache"

	"github.com/gin-gonic/gin"
)

// IPRateLimit rate-limits by client IP, for routes reached before
// authentication is known to have succeeded.
func IPRateLimit(limiter cache.RateLimiterInterface, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") == "websocket" {
			c.Next()
			return
		}
		key := cache.IPRateLimitKey(clientIP(c))
		enforce(c, limiter, key, limit, window)
	}
}

// UserRateLimit rate-limits by the authenticated caller, keyed per
// concern (message sends, reactions, key-plane mutations/reads) so one
// hot path exhausting its budget never throttles another.
func UserRateLimit(limiter cache.RateLimiterInterface, keyFn func(userID string) string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authn.ExternalUserID(c)
		if err != nil {
			Error(c, err)
			c.Abort()
			return
		}
		enforce(c, limiter, keyFn(userID), limit, window)
	}
}

func enforce(c *gin.Context, limiter cache.RateLimiterInterface, key string, limit int, window time.Duration) {
	allowed, remaining, resetTime := limiter.Allow(c.Request.Context(), key, limit, window)

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if !allowed {
		retryAfter := int(time.Until(resetTime).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":     false,
			"message":     "rate limit exceeded",
			"retry_after": retryAfter,
		})
		c.Abort()
		return
	}

	c.Next()
}

func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if host, _, err := net.SplitHostPort(xff); err == nil {
			return host
		}
		return xff
	}
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
