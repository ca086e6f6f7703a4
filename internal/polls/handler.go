package polls

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Question  string   `json:"question" binding:"required"`
	Options   []string `json:"options" binding:"required"`
	Anonymous bool     `json:"anonymous"`
}

// VoteRequest is the body for POST /polls/:id/vote.
type VoteRequest struct {
	Option string `json:"option" binding:"required"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	svc  *Service
	loop scene.Runner
}

// NewHandler creates a polls handler.
func NewHandler(svc *Service, loop scene.Runner) *Handler {
	return &Handler{svc: svc, loop: loop}
}

// Create handles POST /polls (host). The poll becomes the current activity.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	var p *models.Poll
	err := h.loop.Do(ctx, func() (err error) {
		p, err = h.svc.Create(ctx, user, req.Question, req.Options, req.Anonymous)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to create poll")
		return
	}
	if p == nil {
		response.UnprocessableEntity(c, "question or options out of bounds")
		return
	}
	response.Created(c, p)
}

// Vote handles POST /polls/:id/vote. Votes on closed polls or unknown options
// are ignored.
func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	session, pollID, user := middleware.SessionID(c), c.Param("id"), middleware.Wallet(c)
	var applied bool
	err := h.loop.Do(ctx, func() (err error) {
		applied, err = h.svc.Vote(ctx, session, pollID, req.Option, user)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to vote")
		return
	}
	response.Applied(c, applied, nil)
}
