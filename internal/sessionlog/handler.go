package sessionlog

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/pkg/response"
)

const attendeesLimit = 500

// Reader reads attendance.
type Reader interface {
	ListByScene(ctx context.Context, sceneID string, limit int) ([]models.AttendeeSessionLog, error)
	GetWatchTimeAggregates(ctx context.Context, sceneID string) (*WatchTimeAggregates, error)
}

// Handler handles GET /scene/attendees.
type Handler struct {
	repo    Reader
	sceneID string
}

// NewHandler creates a session log handler.
func NewHandler(repo Reader, sceneID string) *Handler {
	return &Handler{repo: repo, sceneID: sceneID}
}

// GetAttendees handles GET /scene/attendees (host only: attendance spans and totals).
func (h *Handler) GetAttendees(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.repo.ListByScene(ctx, h.sceneID, attendeesLimit)
	if err != nil {
		response.Internal(c, "failed to list attendees")
		return
	}
	agg, err := h.repo.GetWatchTimeAggregates(ctx, h.sceneID)
	if err != nil {
		response.Internal(c, "failed to aggregate watch time")
		return
	}
	if list == nil {
		list = []models.AttendeeSessionLog{}
	}
	response.OK(c, gin.H{"attendees": list, "totals": agg})
}
