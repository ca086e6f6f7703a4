package customization

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// ColorRequest is the body for PUT /customization/color.
type ColorRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// ImageRequest is the body for PUT /customization/image.
type ImageRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// Handler handles the scene look endpoints.
type Handler struct {
	svc  *Service
	loop scene.Runner
}

func NewHandler(svc *Service, loop scene.Runner) *Handler {
	return &Handler{svc: svc, loop: loop}
}

// Get handles GET /customization.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	var out models.Customization
	err := h.loop.Do(ctx, func() (err error) {
		out, err = h.svc.Get(ctx)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load customization")
		return
	}
	response.OK(c, out)
}

// SetColor handles PUT /customization/color (host).
func (h *Handler) SetColor(c *gin.Context) {
	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	err := h.loop.Do(ctx, func() error {
		return h.svc.SetAccentColor(ctx, user, req.Hex)
	})
	h.respond(c, err)
}

// SetImage handles PUT /customization/image (host). The request waits for
// the image check.
func (h *Handler) SetImage(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.respond(c, h.svc.SetLogo(c.Request.Context(), middleware.Wallet(c), req.URL))
}

// Revert handles DELETE /customization (host).
func (h *Handler) Revert(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.loop.Do(ctx, func() error {
		return h.svc.RevertToDefault(ctx)
	})
	h.respond(c, err)
}

func (h *Handler) respond(c *gin.Context, err error) {
	switch {
	case err == nil:
		response.Applied(c, true, nil)
	case errors.Is(err, ErrInvalidColor), errors.Is(err, ErrNotImage),
		errors.Is(err, ErrGIF), errors.Is(err, ErrFetchFailed):
		response.UnprocessableEntity(c, rootMessage(err))
	default:
		response.Internal(c, "failed to update customization")
	}
}

func rootMessage(err error) string {
	for _, e := range []error{ErrInvalidColor, ErrNotImage, ErrGIF, ErrFetchFailed} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return err.Error()
}
