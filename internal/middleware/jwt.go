package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/auth"
	"github.com/aura-webinar/auditorium/pkg/response"
)

const (
	// ContextWallet is the key for the attendee wallet in gin context.
	ContextWallet = "wallet"
	// ContextName is the key for the display name in gin context.
	ContextName = "display_name"
	// ContextSessionID is the key for the client session in gin context.
	ContextSessionID = "session_id"
)

// JWT returns a middleware that validates the session token and sets the
// attendee identity in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextWallet, claims.Wallet)
		c.Set(ContextName, claims.Name)
		c.Set(ContextSessionID, claims.SessionID())
		c.Next()
	}
}

// Wallet returns the authenticated attendee.
func Wallet(c *gin.Context) string { return c.GetString(ContextWallet) }

// SessionID returns the client session of the request.
func SessionID(c *gin.Context) string { return c.GetString(ContextSessionID) }
