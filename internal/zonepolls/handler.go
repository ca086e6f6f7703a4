package zonepolls

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// CreateRequest is the body for POST /zonepolls.
type CreateRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required"`
}

// Handler handles zone poll HTTP endpoints.
type Handler struct {
	svc   *Service
	doors *Doors
	loop  scene.Runner
}

func NewHandler(svc *Service, doors *Doors, loop scene.Runner) *Handler {
	return &Handler{svc: svc, doors: doors, loop: loop}
}

// Create handles POST /zonepolls (host). Voting starts once the poll
// becomes current on each instance.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	var zp *models.ZonePoll
	err := h.loop.Do(ctx, func() (err error) {
		zp, err = h.svc.Create(ctx, user, req.Question, req.Options)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to create zone poll")
		return
	}
	if zp == nil {
		response.UnprocessableEntity(c, "question or options out of bounds")
		return
	}
	response.Created(c, zp)
}

// Doors handles GET /zonepolls/doors.
func (h *Handler) Doors(c *gin.Context) {
	ctx := c.Request.Context()
	var st models.VotingDoors
	err := h.loop.Do(ctx, func() (err error) {
		st, err = h.doors.State(ctx)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to read doors")
		return
	}
	response.OK(c, st)
}
