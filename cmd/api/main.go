package main

import (
	"context"
	"log"
	"time"

	"filedepot/config"
	"filedepot/internal/handler"
	redisint "filedepot/internal/redis"
	"filedepot/internal/repository"
	"filedepot/internal/server"
	"filedepot/internal/services"
	"filedepot/internal/storage"
	"filedepot/pkg/database"
	"filedepot/pkg/events"
	"filedepot/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)

	database.Connect(cfg)

	ctx := context.Background()

	blob, err := storage.NewClient(ctx, storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PublicBase: cfg.S3PublicBase,
	})
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	redisClient, err := redisint.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	broker := events.NewRedisBroker(redisClient)
	cache := redisint.NewStatusCache(redisClient, redisint.DefaultCacheConfig())
	limiter := redisint.NewRateLimiter(redisClient, redisint.DefaultRateLimitConfig())

	repo := repository.NewSessionRepository(database.DB)

	sessionSvc := services.NewSessionService(repo, blob, l,
		cfg.ChunkSize, time.Duration(cfg.SessionTTLHours)*time.Hour)
	assembler := services.NewAssemblyService(blob, blob, l, cfg.AssemblyBatchSize)
	finalizeSvc := services.NewFinalizeService(repo, assembler, blob, broker, cache, l,
		cfg.SyncThreshold, cfg.AssemblyMaxAttempts)
	cleanupSvc := services.NewCleanupService(repo, blob, broker, l)

	worker := services.NewAssemblyWorker(finalizeSvc, l, cfg.AssemblyWorkers)
	finalizeSvc.SetQueue(worker)
	worker.Start()
	defer worker.Stop()

	cleanupRunner := services.NewCleanupRunner(cleanupSvc, l,
		time.Duration(cfg.CleanupIntervalMin)*time.Minute,
		time.Duration(cfg.CleanupOlderThanHour)*time.Hour)
	cleanupRunner.Start()
	defer cleanupRunner.Stop()

	uploads := handler.NewUploadHandler(sessionSvc, finalizeSvc, cleanupSvc)

	srv := server.New(cfg, l)
	srv.SetupRoutes(uploads, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
