package players

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// SetHostRequest is the body for PUT /players/:id/host.
type SetHostRequest struct {
	IsHost *bool `json:"is_host" binding:"required"`
}

// SetBanRequest is the body for PUT /players/:id/ban. The id may be a wallet
// or a display name.
type SetBanRequest struct {
	Banned *bool `json:"banned" binding:"required"`
}

// ListResponse is the body of GET /players.
type ListResponse struct {
	Players []models.Player `json:"players"`
	Hosts   []string        `json:"hosts"`
	Bans    []string        `json:"bans"`
	Podium  Podium          `json:"podium"`
}

// Handler handles player directory HTTP endpoints.
type Handler struct {
	dir   *Directory
	marks *scene.Landmarks
	loop  scene.Runner
}

func NewHandler(dir *Directory, marks *scene.Landmarks, loop scene.Runner) *Handler {
	return &Handler{dir: dir, marks: marks, loop: loop}
}

// List handles GET /players.
func (h *Handler) List(c *gin.Context) {
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	var out ListResponse
	err := h.loop.Do(ctx, func() error {
		players, err := h.dir.Players(ctx)
		if err != nil {
			return err
		}
		st, err := h.dir.State(ctx)
		if err != nil {
			return err
		}
		out = ListResponse{
			Players: players,
			Hosts:   nonNil(st.HostList),
			Bans:    nonNil(st.BanList),
			Podium:  h.dir.Podium(ctx, user, h.marks),
		}
		return nil
	})
	if err != nil {
		response.Internal(c, "failed to list players")
		return
	}
	response.OK(c, out)
}

// Podium handles GET /podium.
func (h *Handler) Podium(c *gin.Context) {
	ctx, user := c.Request.Context(), middleware.Wallet(c)
	var out Podium
	err := h.loop.Do(ctx, func() error {
		out = h.dir.Podium(ctx, user, h.marks)
		return nil
	})
	if err != nil {
		response.Internal(c, "failed to read podium")
		return
	}
	response.OK(c, out)
}

// ClaimHost handles POST /host/claim. Only succeeds while nobody hosts.
func (h *Handler) ClaimHost(c *gin.Context) {
	h.apply(c, func(ctx context.Context, actor string) (bool, error) {
		return h.dir.ClaimHost(ctx, actor)
	})
}

// SetHost handles PUT /players/:id/host (host).
func (h *Handler) SetHost(c *gin.Context) {
	var req SetHostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, isHost := c.Param("id"), *req.IsHost
	h.apply(c, func(ctx context.Context, actor string) (bool, error) {
		return h.dir.SetHost(ctx, actor, target, isHost)
	})
}

// SetBan handles PUT /players/:id/ban (host).
func (h *Handler) SetBan(c *gin.Context) {
	var req SetBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, banned := c.Param("id"), *req.Banned
	h.apply(c, func(ctx context.Context, actor string) (bool, error) {
		return h.dir.SetBan(ctx, actor, target, banned)
	})
}

// apply runs fn on the loop as the requesting wallet. fn must not touch c.
func (h *Handler) apply(c *gin.Context, fn func(ctx context.Context, actor string) (bool, error)) {
	ctx, actor := c.Request.Context(), middleware.Wallet(c)
	var applied bool
	err := h.loop.Do(ctx, func() (err error) {
		applied, err = fn(ctx, actor)
		return err
	})
	if err != nil {
		response.Internal(c, "failed to update players")
		return
	}
	response.Applied(c, applied, nil)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
