// Package players tracks who is in the scene, who hosts it and who is banned.
package players

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

const stateRecordID = "state"

// ErrIdentityTimeout is returned by AwaitPlayer when the player never shows up.
var ErrIdentityTimeout = errors.New("timed out waiting for player identity")

// Directory is the player registry of one scene. All methods except
// AwaitPlayer must be called on the scene loop.
type Directory struct {
	state   *replica.Table[models.PlayerState]
	players *replica.Table[models.Player]
	loop    *scene.Loop
	logger  *zap.Logger
	timeout time.Duration

	conns    map[string]int
	banHooks []func()
	onEnter  []func(models.Player)
	onLeave  []func(models.Player)
}

// NewDirectory creates a directory over the replicated store.
func NewDirectory(store replica.Store, loop *scene.Loop, identityTimeout time.Duration, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if identityTimeout <= 0 {
		identityTimeout = 10 * time.Second
	}
	return &Directory{
		state:   replica.NewTable[models.PlayerState](store, replica.ChannelPlayerState),
		players: replica.NewTable[models.Player](store, replica.ChannelPlayers),
		loop:    loop,
		logger:  logger,
		timeout: identityTimeout,
		conns:   make(map[string]int),
	}
}

// State returns the ban and host lists.
func (d *Directory) State(ctx context.Context) (models.PlayerState, error) {
	st, _, err := d.state.Get(ctx, stateRecordID)
	return st, err
}

// Hosts returns the host list; empty on store failure.
func (d *Directory) Hosts(ctx context.Context) []string {
	st, err := d.State(ctx)
	if err != nil {
		d.logger.Warn("read player state failed", zap.Error(err))
		return nil
	}
	return st.HostList
}

// NoHostExists reports whether the host list is empty.
func (d *Directory) NoHostExists(ctx context.Context) bool {
	return len(d.Hosts(ctx)) == 0
}

// IsHost compares case-insensitively against the host list.
func (d *Directory) IsHost(ctx context.Context, user string) bool {
	return containsFold(d.Hosts(ctx), user)
}

// IsBanned reports whether user is on the ban list. Entries are lower case.
func (d *Directory) IsBanned(ctx context.Context, user string) bool {
	st, err := d.State(ctx)
	if err != nil {
		d.logger.Warn("read player state failed", zap.Error(err))
		return false
	}
	return slices.Contains(st.BanList, strings.ToLower(user))
}

// ClaimHost makes user the host only if nobody hosts the scene yet.
func (d *Directory) ClaimHost(ctx context.Context, user string) (bool, error) {
	ok, err := d.state.Mutate(ctx, stateRecordID, func(st *models.PlayerState, _ bool) bool {
		if len(st.HostList) > 0 {
			return false
		}
		st.HostList = append(st.HostList, user)
		return true
	})
	if err != nil {
		return false, err
	}
	if !ok {
		d.logger.Debug("host claim ignored, scene already hosted", zap.String("user", user))
	}
	return ok, nil
}

// SetHost adds or removes user from the host list. Only hosts may do this.
func (d *Directory) SetHost(ctx context.Context, actor, user string, isHost bool) (bool, error) {
	if !d.IsHost(ctx, actor) {
		d.logger.Debug("set host ignored, actor is not a host", zap.String("actor", actor))
		return false, nil
	}
	return d.setHost(ctx, user, isHost)
}

func (d *Directory) setHost(ctx context.Context, user string, isHost bool) (bool, error) {
	return d.state.Mutate(ctx, stateRecordID, func(st *models.PlayerState, _ bool) bool {
		if isHost {
			if containsFold(st.HostList, user) {
				return false
			}
			st.HostList = append(st.HostList, user)
			return true
		}
		next := lo.Reject(st.HostList, func(h string, _ int) bool { return strings.EqualFold(h, user) })
		if len(next) == len(st.HostList) {
			return false
		}
		st.HostList = next
		return true
	})
}

// RemoveHost drops user from the host list without a privilege check. Used
// when a host gets kicked.
func (d *Directory) RemoveHost(ctx context.Context, user string) error {
	_, err := d.setHost(ctx, user, false)
	return err
}

// SetBan adds or removes user, a wallet or display name, from the ban list.
// Hosts only; banning yourself is ignored. Registered ban hooks run after
// every accepted change.
func (d *Directory) SetBan(ctx context.Context, actor, user string, banned bool) (bool, error) {
	user = strings.ToLower(user)
	if strings.EqualFold(actor, user) {
		d.logger.Debug("self ban ignored", zap.String("user", user))
		return false, nil
	}
	if !d.IsHost(ctx, actor) {
		d.logger.Debug("ban ignored, actor is not a host", zap.String("actor", actor))
		return false, nil
	}
	ok, err := d.state.Mutate(ctx, stateRecordID, func(st *models.PlayerState, _ bool) bool {
		has := slices.Contains(st.BanList, user)
		switch {
		case banned && !has:
			st.BanList = append(st.BanList, user)
		case !banned && has:
			st.BanList = lo.Without(st.BanList, user)
		default:
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	for _, hook := range d.banHooks {
		hook()
	}
	return ok, nil
}

// OnBanChange registers fn to run after every SetBan call.
func (d *Directory) OnBanChange(fn func()) {
	d.banHooks = append(d.banHooks, fn)
}

// OnHostChange calls fn on the loop with the host list whenever the player
// state record changes.
func (d *Directory) OnHostChange(fn func(hosts []string)) (cancel func()) {
	return d.state.OnChange(func(_ string, st *models.PlayerState) {
		var hosts []string
		if st != nil {
			hosts = st.HostList
		}
		d.loop.Post(func() { fn(hosts) })
	})
}

// OnEnter registers fn for players entering through this instance.
func (d *Directory) OnEnter(fn func(models.Player)) { d.onEnter = append(d.onEnter, fn) }

// OnLeave registers fn for players leaving through this instance.
func (d *Directory) OnLeave(fn func(models.Player)) { d.onLeave = append(d.onLeave, fn) }

// Enter records a connection of user. Only the first connection adds the
// player to the scene.
func (d *Directory) Enter(ctx context.Context, user, name string) error {
	d.conns[user]++
	if d.conns[user] > 1 {
		return nil
	}
	p := models.Player{Wallet: user, Name: name}
	if existing, ok, err := d.players.Get(ctx, user); err == nil && ok {
		p.Position = existing.Position
	}
	if err := d.players.Put(ctx, user, p); err != nil {
		return err
	}
	d.logger.Info("player entered", zap.String("user", user), zap.String("name", name))
	for _, fn := range d.onEnter {
		fn(p)
	}
	return nil
}

// Leave drops a connection of user. When the last one goes the player leaves
// the scene and is removed from both the ban and host lists.
func (d *Directory) Leave(ctx context.Context, user string) error {
	n, ok := d.conns[user]
	if !ok {
		return nil
	}
	if n > 1 {
		d.conns[user] = n - 1
		return nil
	}
	delete(d.conns, user)

	p, _, err := d.players.Get(ctx, user)
	if err != nil {
		return err
	}
	if err := d.players.Delete(ctx, user); err != nil {
		return err
	}
	_, err = d.state.Mutate(ctx, stateRecordID, func(st *models.PlayerState, _ bool) bool {
		bans := lo.Without(st.BanList, strings.ToLower(user))
		hosts := lo.Reject(st.HostList, func(h string, _ int) bool { return strings.EqualFold(h, user) })
		if len(bans) == len(st.BanList) && len(hosts) == len(st.HostList) {
			return false
		}
		st.BanList, st.HostList = bans, hosts
		return true
	})
	if err != nil {
		return err
	}
	d.logger.Info("player left", zap.String("user", user))
	if p.Wallet == "" {
		p.Wallet = user
	}
	for _, fn := range d.onLeave {
		fn(p)
	}
	return nil
}

// Connected reports whether user has a live connection on this instance.
func (d *Directory) Connected(user string) bool {
	return d.conns[user] > 0
}

// LocalPlayers returns the ids connected to this instance.
func (d *Directory) LocalPlayers() []string {
	ids := lo.Keys(d.conns)
	slices.Sort(ids)
	return ids
}

// Player returns a player in the scene.
func (d *Directory) Player(ctx context.Context, user string) (models.Player, bool) {
	p, ok, err := d.players.Get(ctx, user)
	if err != nil {
		d.logger.Warn("read player failed", zap.String("user", user), zap.Error(err))
		return models.Player{}, false
	}
	return p, ok
}

// Players returns every player in the scene sorted by display name.
func (d *Directory) Players(ctx context.Context) ([]models.Player, error) {
	rows, err := d.players.All(ctx)
	if err != nil {
		return nil, err
	}
	out := lo.Map(rows, func(r replica.Row[models.Player], _ int) models.Player { return r.Value })
	slices.SortStableFunc(out, func(a, b models.Player) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

// UpdatePosition stores the avatar position of a connected player.
func (d *Directory) UpdatePosition(ctx context.Context, user string, pos models.Vec3) error {
	if !d.Connected(user) {
		return nil
	}
	_, err := d.players.Mutate(ctx, user, func(p *models.Player, exists bool) bool {
		if !exists || (p.Position != nil && *p.Position == pos) {
			return false
		}
		p.Position = &pos
		return true
	})
	return err
}

// Positions returns the known avatar positions of every player in the scene.
func (d *Directory) Positions(ctx context.Context) ([]models.Vec3, error) {
	rows, err := d.players.All(ctx)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(rows, func(r replica.Row[models.Player], _ int) (models.Vec3, bool) {
		if r.Value.Position == nil {
			return models.Vec3{}, false
		}
		return *r.Value.Position, true
	}), nil
}

// WithPlayer runs fn with the player once user is connected to this instance,
// checking every tick. It gives up after the identity timeout and logs.
func (d *Directory) WithPlayer(ctx context.Context, user string, fn func(models.Player)) {
	d.withPlayer(ctx, user, fn, func() {
		d.logger.Warn("player identity not available", zap.String("user", user), zap.Duration("timeout", d.timeout))
	})
}

func (d *Directory) withPlayer(ctx context.Context, user string, fn func(models.Player), onTimeout func()) {
	try := func() bool {
		if !d.Connected(user) {
			return false
		}
		p, ok := d.Player(ctx, user)
		if ok {
			fn(p)
		}
		return ok
	}
	if try() {
		return
	}
	var elapsed time.Duration
	var remove func()
	remove = d.loop.AddSystem("await-player", func(dt time.Duration) {
		elapsed += dt
		if elapsed > d.timeout {
			remove()
			onTimeout()
			return
		}
		if try() {
			remove()
		}
	})
}

// AwaitPlayer blocks until user is in the scene. Safe from any goroutine.
func (d *Directory) AwaitPlayer(ctx context.Context, user string) (models.Player, error) {
	type result struct {
		p   models.Player
		err error
	}
	ch := make(chan result, 1)
	d.loop.Post(func() {
		d.withPlayer(ctx, user,
			func(p models.Player) { ch <- result{p: p} },
			func() { ch <- result{err: ErrIdentityTimeout} })
	})
	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
		return models.Player{}, ctx.Err()
	}
}

func containsFold(list []string, s string) bool {
	return lo.ContainsBy(list, func(v string) bool { return strings.EqualFold(v, s) })
}
