package qa

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// CreateSessionRequest is the body for POST /qa.
type CreateSessionRequest struct {
	Title     string `json:"title" binding:"required"`
	Anonymous bool   `json:"anonymous"`
	Moderated bool   `json:"moderated"`
}

// SubmitRequest is the body for POST /qa/:id/questions.
type SubmitRequest struct {
	Text string `json:"text" binding:"required"`
}

// Handler handles Q&A and question HTTP endpoints.
type Handler struct {
	svc    *Service
	queues *Queues
	hosts  Hosts
	loop   scene.Runner
}

// NewHandler creates a Q&A handler.
func NewHandler(svc *Service, queues *Queues, hosts Hosts, loop scene.Runner) *Handler {
	return &Handler{svc: svc, queues: queues, hosts: hosts, loop: loop}
}

// CreateSession handles POST /qa (host). Every question of earlier sessions
// is discarded.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	user := middleware.Wallet(c)
	var s *models.QASession
	err := h.loop.Do(ctx, func() (err error) {
		s, err = h.svc.CreateSession(ctx, user, req.Title, req.Anonymous, req.Moderated)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to create Q&A session")
		return
	}
	if s == nil {
		response.UnprocessableEntity(c, "title out of bounds")
		return
	}
	response.Created(c, s)
}

// Submit handles POST /qa/:id/questions. Hosts skip moderation.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	user, sessionID := middleware.Wallet(c), c.Param("id")
	var q *models.Question
	err := h.loop.Do(ctx, func() (err error) {
		q, err = h.svc.Submit(ctx, sessionID, req.Text, user, h.hosts.IsHost(ctx, user))
		return err
	})
	if err != nil {
		response.Internal(c, "failed to submit question")
		return
	}
	if q == nil {
		response.Applied(c, false, nil)
		return
	}
	response.Created(c, q)
}

// Queue handles GET /qa/queue?tab=&page=. The view, including its frozen
// snapshot, is kept per client session.
func (h *Handler) Queue(c *gin.Context) {
	var page *int
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid page")
			return
		}
		page = &n
	}
	tab := models.QuestionState(c.Query("tab"))

	ctx := c.Request.Context()
	user, session := middleware.Wallet(c), middleware.SessionID(c)
	var out Page
	err := h.loop.Do(ctx, func() (err error) {
		view := h.queues.For(session, user)
		view.SetHost(h.hosts.IsHost(ctx, user))
		if tab != "" {
			view.SetTab(tab)
		}
		if page != nil {
			if _, err := view.Refresh(ctx); err != nil {
				return err
			}
			view.SetPage(*page)
		}
		out, err = view.Refresh(ctx)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to load queue")
		return
	}
	response.OK(c, out)
}

// questionAction runs on the loop with values read from the request up front;
// the gin context is not valid there.
type questionAction func(ctx context.Context, user, id string) (bool, error)

func (h *Handler) act(c *gin.Context, fn questionAction, failure string) {
	ctx := c.Request.Context()
	user, id := middleware.Wallet(c), c.Param("id")
	var applied bool
	err := h.loop.Do(ctx, func() (err error) {
		applied, err = fn(ctx, user, id)
		return err
	})
	if err != nil {
		response.Internal(c, failure)
		return
	}
	response.Applied(c, applied, nil)
}

// Upvote handles POST /questions/:id/upvote; a second call removes the vote.
func (h *Handler) Upvote(c *gin.Context) {
	h.act(c, func(ctx context.Context, user, id string) (bool, error) {
		return h.svc.ToggleVote(ctx, id, user)
	}, "failed to vote")
}

// Approve handles POST /questions/:id/approve (host).
func (h *Handler) Approve(c *gin.Context) {
	h.act(c, func(ctx context.Context, user, id string) (bool, error) {
		return h.svc.Approve(ctx, user, id)
	}, "failed to approve question")
}

// Reopen handles POST /questions/:id/reopen (host).
func (h *Handler) Reopen(c *gin.Context) {
	h.act(c, func(ctx context.Context, user, id string) (bool, error) {
		return h.svc.Reopen(ctx, user, id)
	}, "failed to reopen question")
}

// Remove handles DELETE /questions/:id. Hosts remove any question, authors
// their own until it is answered.
func (h *Handler) Remove(c *gin.Context) {
	h.act(c, func(ctx context.Context, user, id string) (bool, error) {
		return h.svc.Remove(ctx, user, id)
	}, "failed to remove question")
}
