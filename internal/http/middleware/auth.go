package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridpulse/p1-telemetry/internal/auth"
)

// DeviceAuth authenticates requests with a static bearer token and binds
// the resolved device identity to the request context.
//
// The Authorization header must be "Bearer <token>" and the token must
// appear in the configured token map. Requests failing either check are
// rejected with 401 before any handler runs; the response never reveals
// whether the token was absent, malformed, or simply unknown.
func DeviceAuth(tokens auth.DeviceTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			unauthorized(c)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
		device, ok := tokens.Lookup(token)
		if !ok {
			unauthorized(c)
			return
		}
		c.Set(deviceIDKey, device)
		c.Next()
	}
}

// DeviceID returns the authenticated device bound to the request, or an
// empty string on unauthenticated routes.
func DeviceID(c *gin.Context) string {
	if v, ok := c.Get(deviceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func unauthorized(c *gin.Context) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    "missing or invalid bearer token",
	})
}
