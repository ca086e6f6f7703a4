// Package auditorium assembles one scene: the loop, the replicated services
// running on it and the realtime events they push to attendees.
package auditorium

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/config"
	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/customization"
	"github.com/aura-webinar/auditorium/internal/moderation"
	"github.com/aura-webinar/auditorium/internal/players"
	"github.com/aura-webinar/auditorium/internal/polls"
	"github.com/aura-webinar/auditorium/internal/qa"
	"github.com/aura-webinar/auditorium/internal/realtime"
	"github.com/aura-webinar/auditorium/internal/relay"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
	"github.com/aura-webinar/auditorium/internal/sessionlog"
	"github.com/aura-webinar/auditorium/internal/surveys"
	"github.com/aura-webinar/auditorium/internal/votememory"
	"github.com/aura-webinar/auditorium/internal/zonepolls"
)

const queueViewCacheSize = 4096

// Deps are the collaborators a scene is built on. Only Store and Hub are
// required.
type Deps struct {
	Store      replica.Store
	Hub        *realtime.Hub
	Marks      *scene.Landmarks
	Archiver   activities.Archiver
	Mirror     customization.Mirrorer
	Attendance *sessionlog.Recorder
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Scene is a running auditorium.
type Scene struct {
	Loop          *scene.Loop
	Marks         *scene.Landmarks
	Relay         *relay.Relay
	Players       *players.Directory
	Registry      *activities.Registry
	Polls         *polls.Service
	Surveys       *surveys.Service
	ZonePolls     *zonepolls.Service
	Doors         *zonepolls.Doors
	QA            *qa.Service
	Queues        *qa.Queues
	Customization *customization.Service

	zoneSystem *zonepolls.System
	kicker     *moderation.Kicker
	hub        *realtime.Hub
	attendance *sessionlog.Recorder
	cfg        config.SceneConfig
	logger     *zap.Logger

	ctx   context.Context
	stops []func()
}

// New builds a scene. Nothing runs until Start.
func New(cfg config.SceneConfig, limits config.LimitsConfig, deps Deps) *Scene {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("scene_id", cfg.ID))
	marks := deps.Marks
	if marks == nil {
		marks = scene.DefaultLandmarks()
	}
	lim := activities.Limits(limits)
	store := deps.Store
	loop := scene.NewLoop(cfg.TickInterval, logger)
	rl := relay.New(store, loop, logger.Named("relay"))
	dir := players.NewDirectory(store, loop, cfg.IdentityTimeout, logger.Named("players"))
	reg := activities.NewRegistry(store, loop, rl, deps.Archiver, logger.Named("activities"))

	s := &Scene{
		Loop:       loop,
		Marks:      marks,
		Relay:      rl,
		Players:    dir,
		Registry:   reg,
		hub:        deps.Hub,
		attendance: deps.Attendance,
		cfg:        cfg,
		logger:     logger,
	}
	s.Polls = polls.NewService(store, reg, votememory.New[string](cfg.VoteMemorySize, cfg.VoteMemoryTTL), lim, logger.Named("polls"))
	s.Surveys = surveys.NewService(store, reg, rl, votememory.New[int](cfg.VoteMemorySize, cfg.VoteMemoryTTL), lim, logger.Named("surveys"))
	s.ZonePolls = zonepolls.NewService(store, reg, rl, lim, logger.Named("zonepolls"))
	s.Doors = zonepolls.NewDoors(store, logger.Named("doors"))
	s.QA = qa.NewService(store, reg, dir, rl, lim, logger.Named("qa"))
	s.Queues = qa.NewQueues(s.QA, dir, cfg.QueuePageSize, queueViewCacheSize, cfg.VoteMemoryTTL)

	push := &pusher{hub: deps.Hub}
	s.Customization = customization.NewService(store, loop, push, deps.Mirror, deps.HTTPClient, customization.Config{
		DefaultLogoURL: cfg.DefaultLogoURL,
		ClearAfter:     cfg.StatusClearAfter,
	}, logger.Named("customization"))
	s.zoneSystem = zonepolls.NewSystem(s.ZonePolls, reg, dir, marks, s.Doors, push, loop, zonepolls.SystemConfig{
		Duration:   cfg.ZonePollDuration,
		DoorsDelay: cfg.DoorsDelay,
	}, logger.Named("zonepolls"))
	s.kicker = moderation.NewKicker(dir, marks, push, logger.Named("moderation"))

	reg.Register(s.Polls)
	reg.Register(s.Surveys)
	reg.Register(s.ZonePolls)
	reg.Register(s.QA)
	s.handleRelay()
	return s
}

// Start runs the loop and subscribes every service to the replicated store.
func (s *Scene) Start(ctx context.Context) error {
	s.ctx = ctx
	if s.hub != nil {
		s.hub.SetEvents(s)
	}
	s.Loop.Start()
	return s.Loop.Do(ctx, func() error {
		s.stops = append(s.stops,
			s.Relay.Start(ctx),
			s.zoneSystem.Setup(ctx),
			s.kicker.Setup(ctx, s.Loop),
		)
		s.watch(ctx)
		s.logger.Info("scene started")
		return nil
	})
}

// Stop unsubscribes the services and stops the loop.
func (s *Scene) Stop() {
	for i := len(s.stops) - 1; i >= 0; i-- {
		s.stops[i]()
	}
	s.stops = nil
	s.Loop.Stop()
	s.logger.Info("scene stopped")
}

// IsHost answers from the loop, for use by HTTP middleware.
func (s *Scene) IsHost(ctx context.Context, user string) (bool, error) {
	var ok bool
	err := s.Loop.Do(ctx, func() error {
		ok = s.Players.IsHost(ctx, user)
		return nil
	})
	return ok, err
}

// CompactRelay trims relay messages older than the retention window.
func (s *Scene) CompactRelay(ctx context.Context) {
	var removed int
	err := s.Loop.Do(ctx, func() (err error) {
		removed, err = s.Relay.Compact(ctx, s.cfg.RelayRetention)
		return err
	})
	if err != nil {
		s.logger.Warn("relay compaction failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("relay compacted", zap.Int("removed", removed))
	}
}

// run posts fn to the loop with the scene context.
func (s *Scene) run(name string, fn func(ctx context.Context) error) {
	s.Loop.Post(func() {
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := fn(ctx); err != nil {
			s.logger.Warn(name+" failed", zap.Error(err))
		}
	})
}
