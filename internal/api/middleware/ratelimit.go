package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Limiter interface {
	Allow(caller string) bool
}

// RateLimit buckets authenticated callers by nest, anonymous ones by
// client IP.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("nest_id")
		if caller == "" {
			caller = c.ClientIP()
		}
		if !limiter.Allow(caller) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
