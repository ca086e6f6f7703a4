package zonepolls

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
)

// zoneHalfSize is half the side of the square footprint of a zone, in meters.
const zoneHalfSize = 1.5

// Overlay shows the floating question, live counts and countdown to the
// attendees of this instance.
type Overlay interface {
	ShowQuestion(question string, options []string, duration time.Duration)
	UpdateCounts(counts []int)
	Hide()
}

// Activities is the part of the activity registry the system drives.
type Activities interface {
	Current(ctx context.Context) (activities.Activity, bool, error)
	CloseCurrent(ctx context.Context) error
	Listen(ctx context.Context, fn func(activities.Activity)) (cancel func())
}

// Positions lists the avatar positions of everyone in the scene.
type Positions interface {
	Positions(ctx context.Context) ([]models.Vec3, error)
}

type zone struct {
	index  int
	center models.Vec3
}

func (z zone) contains(p models.Vec3) bool {
	return math.Abs(p.X-z.center.X) < zoneHalfSize && math.Abs(p.Z-z.center.Z) < zoneHalfSize
}

// SystemConfig holds the timings of a zone poll.
type SystemConfig struct {
	Duration   time.Duration
	DoorsDelay time.Duration
}

// System drives the current zone poll on every tick: it resamples zone
// occupancy, runs the countdown and closes the poll once.
type System struct {
	svc      *Service
	registry Activities
	players  Positions
	marks    *scene.Landmarks
	doors    *Doors
	overlay  Overlay
	loop     *scene.Loop
	cfg      SystemConfig
	logger   *zap.Logger

	ctx           context.Context
	active        bool
	alreadyClosed bool
	zones         []zone
	timers        []func()
}

func NewSystem(svc *Service, registry Activities, players Positions, marks *scene.Landmarks, doors *Doors, overlay Overlay, loop *scene.Loop, cfg SystemConfig, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Second
	}
	return &System{
		svc:      svc,
		registry: registry,
		players:  players,
		marks:    marks,
		doors:    doors,
		overlay:  overlay,
		loop:     loop,
		cfg:      cfg,
		logger:   logger,
	}
}

// Setup registers the per-tick update and starts following the current
// activity. Must be called on the loop.
func (s *System) Setup(ctx context.Context) (stop func()) {
	s.ctx = ctx
	remove := s.loop.AddSystem("zonepolls", s.update)
	cancel := s.registry.Listen(ctx, func(a activities.Activity) {
		s.active = a != nil && a.Type() == models.ActivityZonePoll
		if s.active {
			s.start(a.Base().ID)
		}
	})
	return func() {
		cancel()
		remove()
		s.cancelTimers()
	}
}

// Active reports whether the current activity is a zone poll.
func (s *System) Active() bool { return s.active }

func (s *System) start(id string) {
	zp, ok, err := s.svc.Get(s.ctx, id)
	if err != nil || !ok {
		s.logger.Warn("zone poll missing on start", zap.String("activity_id", id), zap.Error(err))
		return
	}
	s.cancelTimers()
	s.alreadyClosed = false
	s.zones = s.zones[:0]
	for i := range zp.Options {
		if i >= MaxZones {
			break
		}
		center, found := s.marks.Lookup(scene.ZoneLandmark(i + 1))
		if !found {
			s.logger.Warn("zone landmark missing", zap.Int("zone", i+1))
			continue
		}
		s.zones = append(s.zones, zone{index: i, center: center})
	}

	doors := lo.Map(s.zones, func(z zone, _ int) int { return z.index + 1 })
	s.timers = append(s.timers,
		s.loop.After(s.cfg.DoorsDelay, func() {
			if err := s.doors.Open(s.ctx, doors...); err != nil {
				s.logger.Warn("open voting doors failed", zap.Error(err))
			}
		}),
		s.loop.After(s.cfg.Duration, func() { s.close(id) }),
	)
	s.overlay.ShowQuestion(zp.Question, zp.Options, s.cfg.Duration)
	s.logger.Info("zone poll started", zap.String("activity_id", id), zap.Int("zones", len(s.zones)))
}

func (s *System) current() (models.ZonePoll, bool) {
	cur, ok, err := s.registry.Current(s.ctx)
	if err != nil {
		s.logger.Warn("resolve current activity failed", zap.Error(err))
		return models.ZonePoll{}, false
	}
	if !ok || cur.Type() != models.ActivityZonePoll {
		return models.ZonePoll{}, false
	}
	zp, ok, err := s.svc.Get(s.ctx, cur.Base().ID)
	if err != nil || !ok {
		return models.ZonePoll{}, false
	}
	return zp, true
}

func (s *System) update(time.Duration) {
	if !s.active {
		return
	}
	zp, ok := s.current()
	if !ok {
		return
	}
	if zp.Closed {
		s.close(zp.ID)
		return
	}
	counts, err := s.sample(len(zp.ZoneCounts))
	if err != nil {
		s.logger.Warn("sample zone occupancy failed", zap.Error(err))
		return
	}
	if slices.Equal(counts, zp.ZoneCounts) {
		return
	}
	if _, err := s.svc.SetCounts(s.ctx, zp.ID, counts); err != nil {
		s.logger.Warn("store zone counts failed", zap.String("activity_id", zp.ID), zap.Error(err))
		return
	}
	s.overlay.UpdateCounts(counts)
}

// sample counts the players standing in each zone right now.
func (s *System) sample(n int) ([]int, error) {
	positions, err := s.players.Positions(s.ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]int, n)
	for _, p := range positions {
		for _, z := range s.zones {
			if z.index < n && z.contains(p) {
				counts[z.index]++
				break
			}
		}
	}
	return counts, nil
}

func (s *System) close(id string) {
	if s.alreadyClosed {
		return
	}
	cur, ok := s.current()
	if !ok || cur.ID != id {
		return
	}
	s.alreadyClosed = true
	if err := s.registry.CloseCurrent(s.ctx); err != nil {
		s.logger.Error("close zone poll failed", zap.String("activity_id", id), zap.Error(err))
	}
	s.zones = s.zones[:0]
	s.cancelTimers()
	s.overlay.Hide()
	if err := s.doors.CloseAll(s.ctx); err != nil {
		s.logger.Warn("close voting doors failed", zap.Error(err))
	}
}

func (s *System) cancelTimers() {
	for _, cancel := range s.timers {
		cancel()
	}
	s.timers = nil
}
