package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/pkg/response"
)

// SessionRequest is the body for POST /session. An empty wallet asks for a
// guest identity.
type SessionRequest struct {
	Wallet string `json:"wallet" binding:"omitempty,eth_addr"`
	Name   string `json:"name" binding:"required,min=1,max=32"`
}

// SessionResponse is the issued identity.
type SessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	Wallet    string    `json:"wallet"`
	Name      string    `json:"name"`
	Guest     bool      `json:"guest"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{jwt: jwt, logger: logger}
}

// Session handles POST /session.
func (h *Handler) Session(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.BadRequest(c, "name required")
		return
	}
	wallet := strings.ToLower(req.Wallet)
	guest := wallet == ""
	if guest {
		var err error
		if wallet, err = guestWallet(); err != nil {
			response.Internal(c, "failed to create guest identity")
			return
		}
	}

	token, claims, err := h.jwt.Generate(wallet, name)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("session issued", zap.String("user", wallet), zap.Bool("guest", guest))
	response.Created(c, SessionResponse{
		Token:     token,
		SessionID: claims.SessionID(),
		Wallet:    wallet,
		Name:      name,
		Guest:     guest,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// guestWallet returns a random address-shaped id.
func guestWallet() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}
