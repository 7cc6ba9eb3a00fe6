package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"rendernode/internal/config"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
	"rendernode/internal/worker/renderer"
)

type Deps struct {
	Config   *config.Config
	RDB      *redis.Client
	DB       *pgxpool.Pool // optional job ledger
	Storage  ports.StorageProvider
	Renderer renderer.Client // optional, defaults to the configured executable
	Log      *logger.Logger
}
