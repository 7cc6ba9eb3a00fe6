package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"rendernode/internal/config"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/pkg/shutdown"
	"rendernode/internal/storage"
	"rendernode/internal/worker"
)

func main() {
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = config.Env("SERVICE_NAME", "rendernode-worker")
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting render node",
		"hostname", cfg.Hostname,
		"capacity", cfg.Capacity,
		"queue", cfg.QueueName,
		"heartbeat", cfg.HeartbeatInterval.String(),
	)

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

	// Job ledger is optional
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", db.Close)
		if err := db.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		log.Info("PostgreSQL connected, job ledger enabled")
	}

	sp, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	node, err := worker.NewNode(ctx, worker.Deps{
		Config:  cfg,
		RDB:     rdb,
		DB:      db,
		Storage: sp,
		Log:     log,
	})
	if err != nil {
		log.LogFatal("failed to start render node", err)
	}

	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     node.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	go func() {
		log.Info("ops listener started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("ops listener failed", err)
		}
	}()

	// Registered last so it drains first.
	shutdownMgr.Register("pool", node.Stop)
	go node.Run(shutdownMgr.Context())

	shutdownMgr.Wait(ctx)
}
