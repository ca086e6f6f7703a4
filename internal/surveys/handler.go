package surveys

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// CreateRequest is the body for POST /surveys.
type CreateRequest struct {
	Question   string            `json:"question" binding:"required"`
	Icon       models.SurveyIcon `json:"icon" binding:"required"`
	OptionsQty int               `json:"options_qty" binding:"required"`
	Anonymous  bool              `json:"anonymous"`
}

// RateRequest is the body for POST /surveys/:id/rate.
type RateRequest struct {
	Rating int `json:"rating" binding:"required"`
}

// Handler handles survey HTTP endpoints.
type Handler struct {
	svc  *Service
	loop scene.Runner
}

func NewHandler(svc *Service, loop scene.Runner) *Handler {
	return &Handler{svc: svc, loop: loop}
}

// Create handles POST /surveys (host).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	var s *models.Survey
	err := h.loop.Do(ctx, func() (err error) {
		s, err = h.svc.Create(ctx, user, req.Question, req.Icon, req.OptionsQty, req.Anonymous)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to create survey")
		return
	}
	if s == nil {
		response.UnprocessableEntity(c, "invalid survey")
		return
	}
	response.Created(c, s)
}

// Rate handles POST /surveys/:id/rate.
func (h *Handler) Rate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	session, surveyID, user := middleware.SessionID(c), c.Param("id"), middleware.Wallet(c)
	var applied bool
	err := h.loop.Do(ctx, func() (err error) {
		applied, err = h.svc.Rate(ctx, session, surveyID, req.Rating, user)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to rate")
		return
	}
	response.Applied(c, applied, nil)
}
