package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"rendernode/internal/config"
	"rendernode/internal/httpapi"
	"rendernode/internal/httpapi/handlers"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/pkg/shutdown"
	"rendernode/internal/repositories"
	"rendernode/internal/worker/queue"
)

func main() {
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = config.Env("SERVICE_NAME", "rendernode-api")
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting intake API", "queue", cfg.QueueName)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	q := queue.NewRedisQueue(rdb, queue.Options{KeyPrefix: cfg.QueueKeyPrefix})
	jobQueue, err := q.CreateOrOpen(ctx, cfg.QueueName)
	if err != nil {
		log.LogFatal("failed to open job queue", err)
	}

	deps := httpapi.Deps{
		Log:      log,
		Service:  logCfg.ServiceName,
		Queue:    q,
		JobQueue: jobQueue,
		Checks:   map[string]handlers.Check{"redis": q.Ping},
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}

		repo := repositories.NewJobRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare job ledger", err)
		}
		deps.Jobs = repo
		deps.Checks["postgres"] = repo.Ping
		log.Info("PostgreSQL connected, job ledger enabled")
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(ctx)
}
