package activities

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// View is the current activity as shown in the activity panel.
type View struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Title   string  `json:"title"`
	Creator string  `json:"creator_id"`
	Closed  bool    `json:"closed"`
	Summary Summary `json:"summary"`
}

// NewView describes a.
func NewView(a Activity) View {
	b := a.Base()
	return View{ID: b.ID, Type: a.Type().String(), Title: a.Title(), Creator: b.CreatorID, Closed: b.Closed, Summary: a.Summary()}
}

// Handler handles the current-activity endpoints.
type Handler struct {
	reg   *Registry
	relay Publisher
	loop  scene.Runner
}

func NewHandler(reg *Registry, relay Publisher, loop scene.Runner) *Handler {
	return &Handler{reg: reg, relay: relay, loop: loop}
}

func (h *Handler) current(c *gin.Context) (Activity, bool) {
	ctx := c.Request.Context()
	var (
		cur Activity
		ok  bool
	)
	err := h.loop.Do(ctx, func() (err error) {
		cur, ok, err = h.reg.Current(ctx)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to read current activity")
		return nil, false
	}
	if !ok {
		response.NotFound(c, "no current activity")
		return nil, false
	}
	return cur, true
}

// Current handles GET /activity.
func (h *Handler) Current(c *gin.Context) {
	if cur, ok := h.current(c); ok {
		response.OK(c, NewView(cur))
	}
}

// Results handles GET /activity/results.
func (h *Handler) Results(c *gin.Context) {
	if cur, ok := h.current(c); ok {
		response.OK(c, gin.H{"activity": NewView(cur), "tally": cur.Tally()})
	}
}

// ShowResults handles POST /activity/results/show (host): every attendee
// gets the results of the current activity.
func (h *Handler) ShowResults(c *gin.Context) {
	if _, ok := h.current(c); !ok {
		return
	}
	h.relay.Publish(models.MessageShowCurrentActivityResults, struct{}{})
	response.Applied(c, true, nil)
}

// Close handles POST /activity/close (host).
func (h *Handler) Close(c *gin.Context) {
	ctx := c.Request.Context()
	var applied bool
	err := h.loop.Do(ctx, func() error {
		cur, ok, err := h.reg.Current(ctx)
		if err != nil {
			return err
		}
		applied = ok && !cur.Base().Closed
		return h.reg.CloseCurrent(ctx)
	})
	if err != nil {
		response.Internal(c, "failed to close activity")
		return
	}
	response.Applied(c, applied, nil)
}
