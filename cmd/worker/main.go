// Package main runs the background job worker (activity archive, logo mirror).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/auditorium/config"
	"github.com/aura-webinar/auditorium/internal/customization"
	"github.com/aura-webinar/auditorium/internal/history"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/worker"
	"github.com/aura-webinar/auditorium/pkg/database"
	"github.com/aura-webinar/auditorium/pkg/queue"
	"github.com/aura-webinar/auditorium/pkg/redis"
	"github.com/aura-webinar/auditorium/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var results worker.ResultStore
	if dsn := cfg.Database.DSN(); dsn != "" {
		pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{
			AppName:         "auditorium-worker",
			MaxConns:        int32(cfg.Database.MaxConns),
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		results = history.NewRepository(pool)
	} else {
		logger.Warn("no database configured, archive jobs will be dropped")
	}

	var (
		objects worker.ObjectStore
		logos   worker.LogoTargets
	)
	if cfg.AWS.LogosBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			LogosBucket:     cfg.AWS.LogosBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		objects = s3Client
		logos = customization.NewSceneLogos(func(sceneID string) replica.Store {
			return replica.NewRedisStore(rdb.Client, cfg.Store.ScenePrefix(sceneID), logger)
		}, logger)
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(jobQueue, results, objects, logos, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
