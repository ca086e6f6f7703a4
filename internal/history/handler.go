package history

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Lister reads archived results.
type Lister interface {
	ListByScene(ctx context.Context, sceneID string, limit int) ([]models.ActivityResult, error)
}

// Handler handles GET /scene/history.
type Handler struct {
	repo    Lister
	sceneID string
}

// NewHandler creates a history handler.
func NewHandler(repo Lister, sceneID string) *Handler {
	return &Handler{repo: repo, sceneID: sceneID}
}

// List handles GET /scene/history?limit=.
func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}
	list, err := h.repo.ListByScene(c.Request.Context(), h.sceneID, limit)
	if err != nil {
		response.Internal(c, "failed to list history")
		return
	}
	if list == nil {
		list = []models.ActivityResult{}
	}
	response.OK(c, gin.H{"activities": list})
}
