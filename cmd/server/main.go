// Package main runs the auditorium scene server: HTTP API, WebSocket and the
// scene loop, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/auditorium/config"
	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/analytics"
	"github.com/aura-webinar/auditorium/internal/auditorium"
	"github.com/aura-webinar/auditorium/internal/auth"
	"github.com/aura-webinar/auditorium/internal/customization"
	"github.com/aura-webinar/auditorium/internal/history"
	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/players"
	"github.com/aura-webinar/auditorium/internal/polls"
	"github.com/aura-webinar/auditorium/internal/qa"
	"github.com/aura-webinar/auditorium/internal/realtime"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/sessionlog"
	"github.com/aura-webinar/auditorium/internal/surveys"
	"github.com/aura-webinar/auditorium/internal/zonepolls"
	"github.com/aura-webinar/auditorium/pkg/database"
	"github.com/aura-webinar/auditorium/pkg/queue"
	"github.com/aura-webinar/auditorium/pkg/redis"
	"github.com/aura-webinar/auditorium/pkg/response"
)

const attendanceBuffer = 256

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	sceneID := cfg.Scene.ID
	prefix := cfg.Store.ScenePrefix(sceneID)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deps := auditorium.Deps{Logger: logger}

	var (
		store  replica.Store
		bridge realtime.Bridge
	)
	if cfg.Store.Driver == "redis" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		redisStore := replica.NewRedisStore(rdb.Client, prefix, logger.Named("replica"))
		defer redisStore.Close()
		store = redisStore
		bridge = realtime.NewRedisPubSub(rdb.Client, prefix+":events", logger)

		jobQueue := queue.NewQueue(rdb.Client, logger)
		deps.Archiver = history.NewArchiver(sceneID, jobQueue, logger)
		if cfg.AWS.LogosBucket != "" {
			deps.Mirror = customization.NewQueueMirror(jobQueue, sceneID)
		}
	} else {
		logger.Warn("in-memory store, state is not shared between instances")
		store = replica.NewMemoryStore()
	}
	deps.Store = store

	var (
		historyHandler    *history.Handler
		attendanceHandler *sessionlog.Handler
		analyticsHandler  *analytics.Handler
		sessionRepo       *sessionlog.Repository
		historyRepo       *history.Repository
	)
	if dsn := cfg.Database.DSN(); dsn != "" {
		pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{
			AppName:         "auditorium-server",
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		sessionRepo = sessionlog.NewRepository(pool)
		historyRepo = history.NewRepository(pool)
		if n, err := sessionRepo.CloseOpen(ctx, sceneID); err != nil {
			logger.Warn("close stale attendance rows", zap.Error(err))
		} else if n > 0 {
			logger.Info("closed stale attendance rows", zap.Int64("rows", n))
		}
		recorder := sessionlog.NewRecorder(sceneID, sessionRepo, attendanceBuffer, logger)
		go recorder.Run(ctx)
		deps.Attendance = recorder
		attendanceHandler = sessionlog.NewHandler(sessionRepo, sceneID)
		historyHandler = history.NewHandler(historyRepo, sceneID)
	} else {
		logger.Warn("no database configured, history and attendance are disabled")
	}

	hub := realtime.NewHub(logger, bridge)
	deps.Hub = hub
	if sessionRepo != nil {
		analyticsHandler = analytics.NewHandler(sessionRepo, historyRepo, hub, sceneID)
	}
	sc := auditorium.New(cfg.Scene, cfg.Limits, deps)
	if err := sc.Start(ctx); err != nil {
		logger.Fatal("start scene", zap.Error(err))
	}
	if err := hub.Start(); err != nil {
		logger.Fatal("realtime bridge", zap.Error(err))
	}

	compactor := cron.New()
	if _, err := compactor.AddFunc(cfg.Scene.RelayCompactCron, func() { sc.CompactRelay(ctx) }); err != nil {
		logger.Fatal("relay compaction schedule", zap.String("spec", cfg.Scene.RelayCompactCron), zap.Error(err))
	}
	compactor.Start()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(jwtService, logger)
	playerHandler := players.NewHandler(sc.Players, sc.Marks, sc.Loop)
	activityHandler := activities.NewHandler(sc.Registry, sc.Relay, sc.Loop)
	pollHandler := polls.NewHandler(sc.Polls, sc.Loop)
	surveyHandler := surveys.NewHandler(sc.Surveys, sc.Loop)
	zonePollHandler := zonepolls.NewHandler(sc.ZonePolls, sc.Doors, sc.Loop)
	qaHandler := qa.NewHandler(sc.QA, sc.Queues, sc.Players, sc.Loop)
	customizationHandler := customization.NewHandler(sc.Customization, sc.Loop)
	host := middleware.RequireHost(sc)

	jwtValidate := func(token string) (realtime.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Identity{}, err
		}
		return realtime.Identity{User: claims.Wallet, Name: claims.Name, SessionID: claims.SessionID()}, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.SplitOrigins()))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "scene_id": sceneID, "connections": hub.Count()})
	})
	router.POST("/session", authHandler.Session)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Players and hosts
		api.GET("/players", playerHandler.List)
		api.GET("/podium", playerHandler.Podium)
		api.POST("/host/claim", playerHandler.ClaimHost)
		api.PUT("/players/:id/host", host, playerHandler.SetHost)
		api.PUT("/players/:id/ban", host, playerHandler.SetBan)

		// Current activity
		api.GET("/activity", activityHandler.Current)
		api.GET("/activity/results", activityHandler.Results)
		api.POST("/activity/close", host, activityHandler.Close)
		api.POST("/activity/results/show", host, activityHandler.ShowResults)

		// Polls and surveys
		api.POST("/polls", host, pollHandler.Create)
		api.POST("/polls/:id/vote", pollHandler.Vote)
		api.POST("/surveys", host, surveyHandler.Create)
		api.POST("/surveys/:id/rate", surveyHandler.Rate)

		// Zone polls
		api.POST("/zonepolls", host, zonePollHandler.Create)
		api.GET("/zonepolls/doors", zonePollHandler.Doors)

		// Q&A
		api.POST("/qa", host, qaHandler.CreateSession)
		api.POST("/qa/:id/questions", qaHandler.Submit)
		api.GET("/qa/queue", qaHandler.Queue)
		api.POST("/questions/:id/upvote", qaHandler.Upvote)
		api.POST("/questions/:id/approve", host, qaHandler.Approve)
		api.POST("/questions/:id/reopen", host, qaHandler.Reopen)
		api.DELETE("/questions/:id", qaHandler.Remove)

		// Scene look
		api.GET("/customization", customizationHandler.Get)
		api.PUT("/customization/color", host, customizationHandler.SetColor)
		api.PUT("/customization/image", host, customizationHandler.SetImage)
		api.DELETE("/customization", host, customizationHandler.Revert)

		if historyHandler != nil {
			api.GET("/scene/history", historyHandler.List)
			api.GET("/scene/attendees", host, attendanceHandler.GetAttendees)
			api.GET("/scene/analytics", host, analyticsHandler.Summary)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("scene_id", sceneID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	<-compactor.Stop().Done()
	hub.Stop()
	sc.Stop()
	stop()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
