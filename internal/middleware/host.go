package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/pkg/response"
)

// HostChecker tells whether a user hosts the scene.
type HostChecker interface {
	IsHost(ctx context.Context, user string) (bool, error)
}

// RequireHost returns a middleware that allows only scene hosts.
func RequireHost(hosts HostChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := Wallet(c)
		if wallet == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		ok, err := hosts.IsHost(c.Request.Context(), wallet)
		if err != nil {
			response.ServiceUnavailable(c, "scene unavailable")
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, "hosts only")
			c.Abort()
			return
		}
		c.Next()
	}
}
