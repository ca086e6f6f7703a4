// Package moderation enforces the ban list on players connected to this instance.
package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
)

var (
	jailFallback  = models.Vec3{X: 10.07, Y: 10, Z: 10.58}
	spawnFallback = models.Vec3{X: 1, Y: 1, Z: 1}
)

// Effects applies kick consequences to a connected client.
type Effects interface {
	Relocate(user string, to models.Vec3)
	Kick(user string)
	Restore(user string)
}

// Directory is the part of the player directory the kicker needs.
type Directory interface {
	State(ctx context.Context) (models.PlayerState, error)
	LocalPlayers() []string
	Player(ctx context.Context, user string) (models.Player, bool)
	RemoveHost(ctx context.Context, user string) error
	UpdatePosition(ctx context.Context, user string, pos models.Vec3) error
	OnBanChange(fn func())
}

// Kicker sends banned players to jail and brings them back when unbanned.
// Transitions are edge-triggered per player. Runs on the scene loop.
type Kicker struct {
	dir     Directory
	marks   *scene.Landmarks
	effects Effects
	logger  *zap.Logger
	kicked  map[string]bool
}

func NewKicker(dir Directory, marks *scene.Landmarks, effects Effects, logger *zap.Logger) *Kicker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kicker{dir: dir, marks: marks, effects: effects, logger: logger, kicked: make(map[string]bool)}
}

// Setup runs Update after every local ban change and on every tick, so bans
// written by other instances are enforced too.
func (k *Kicker) Setup(ctx context.Context, loop *scene.Loop) (stop func()) {
	k.dir.OnBanChange(func() { k.Update(ctx) })
	return loop.AddSystem("kicker", func(time.Duration) { k.Update(ctx) })
}

// Banned reports whether the player's id or display name is on the ban list.
func Banned(banList []string, p models.Player) bool {
	return lo.Contains(banList, strings.ToLower(p.Wallet)) ||
		(p.Name != "" && lo.Contains(banList, strings.ToLower(p.Name)))
}

// Kicked reports whether user is currently held in jail.
func (k *Kicker) Kicked(user string) bool { return k.kicked[user] }

// Update checks every local player against the ban list.
func (k *Kicker) Update(ctx context.Context) {
	st, err := k.dir.State(ctx)
	if err != nil {
		k.logger.Warn("read ban list failed", zap.Error(err))
		return
	}
	local := k.dir.LocalPlayers()
	for _, user := range local {
		p, ok := k.dir.Player(ctx, user)
		if !ok {
			continue
		}
		banned := Banned(st.BanList, p)
		switch {
		case banned && !k.kicked[user]:
			k.kick(ctx, user)
		case !banned && k.kicked[user]:
			k.release(ctx, user)
		}
	}
	for user := range k.kicked {
		if !lo.Contains(local, user) {
			delete(k.kicked, user)
		}
	}
}

func (k *Kicker) kick(ctx context.Context, user string) {
	k.kicked[user] = true
	k.move(ctx, user, scene.LandmarkJail, jailFallback)
	k.effects.Kick(user)
	if err := k.dir.RemoveHost(ctx, strings.ToLower(user)); err != nil {
		k.logger.Warn("remove banned host failed", zap.String("user", user), zap.Error(err))
	}
	k.logger.Info("player kicked", zap.String("user", user))
}

func (k *Kicker) release(ctx context.Context, user string) {
	k.kicked[user] = false
	delete(k.kicked, user)
	k.move(ctx, user, scene.LandmarkSpawn, spawnFallback)
	k.effects.Restore(user)
	k.logger.Info("player released", zap.String("user", user))
}

func (k *Kicker) move(ctx context.Context, user, landmark string, fallback models.Vec3) {
	to, ok := k.marks.Lookup(landmark)
	if !ok {
		to = fallback
	}
	k.effects.Relocate(user, to)
	if err := k.dir.UpdatePosition(ctx, user, to); err != nil {
		k.logger.Warn("store relocated position failed", zap.String("user", user), zap.Error(err))
	}
}
