package middleware

import (
	"strings"

	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminAuth requires a bearer token signed with secret. With an empty
// secret the guarded routes are open.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			util.Unauthorized(c, "")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			util.Unauthorized(c, "Malformed authorization header")
			c.Abort()
			return
		}

		username, err := util.ParseAdminToken(secret, tokenString)
		if err != nil {
			util.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("username", username)
		c.Next()
	}
}

// RateLimit per client ip; a nil limiter disables it
func RateLimit(limiter *util.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow(c.ClientIP()) {
			util.RateLimitError(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
