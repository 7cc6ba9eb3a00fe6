// Package config loads node settings from .env.local and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the worker node and the intake API.
type Config struct {
	// Redis (work queue)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	QueueKeyPrefix string
	QueueName      string

	// Admission control
	Capacity          int           // concurrent jobs; defaults to the CPU core count
	MaxBatch          int           // upper bound for one receive call
	HeartbeatInterval time.Duration // lease renewal period; leases are twice this
	QueueWaitTime     time.Duration // long-poll wait per receive
	ReceiveRetryMin   time.Duration
	ReceiveRetryMax   time.Duration
	ShutdownTimeout   time.Duration

	// Renderer
	RendererPath string
	RendererArgs []string

	// Storage
	StorageProvider    string // localfs, minio, gdrive
	StorageLocalRoot   string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioUseSSL        bool
	MinioRegion        string
	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string

	// Job ledger (optional)
	DatabaseURL string

	// HTTP
	HTTPAddr string // worker ops endpoints
	HTTPPort string // intake API

	Hostname string
}

// Load reads .env.local (if present) and then the environment.
func Load() (*Config, error) {
	loadEnvFile()

	hostname := Env("NODE_HOSTNAME", "")
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve hostname: %w", err)
		}
		hostname = h
	}

	cfg := &Config{
		RedisAddr:      Env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  Env("REDIS_PASSWORD", ""),
		RedisDB:        IntEnv("REDIS_DB", 0),
		QueueKeyPrefix: Env("QUEUE_KEY_PREFIX", "rq"),
		QueueName:      Env("JOB_QUEUE_NAME", "render-jobs"),

		Capacity:          IntEnv("WORKER_CAPACITY", runtime.NumCPU()),
		MaxBatch:          IntEnv("WORKER_MAX_BATCH", 10),
		HeartbeatInterval: DurationEnv("HEARTBEAT_INTERVAL", 30*time.Second),
		QueueWaitTime:     DurationEnv("QUEUE_WAIT_TIME", 10*time.Second),
		ReceiveRetryMin:   DurationEnv("RECEIVE_RETRY_MIN", time.Second),
		ReceiveRetryMax:   DurationEnv("RECEIVE_RETRY_MAX", 30*time.Second),
		ShutdownTimeout:   DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		RendererPath: Env("RENDERER_PATH", ""),
		RendererArgs: strings.Fields(Env("RENDERER_ARGS", "")),

		StorageProvider:    strings.ToLower(Env("STORAGE_PROVIDER", "localfs")),
		StorageLocalRoot:   Env("STORAGE_LOCAL_ROOT", "/data"),
		MinioEndpoint:      Env("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:     Env("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:     Env("MINIO_SECRET_KEY", ""),
		MinioUseSSL:        BoolEnv("MINIO_USE_SSL", false),
		MinioRegion:        Env("MINIO_REGION", ""),
		GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
		GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
		GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
		GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),

		DatabaseURL: Env("DATABASE_URL", ""),

		HTTPAddr: Env("HTTP_ADDR", ":8081"),
		HTTPPort: Env("HTTP_PORT", "8080"),

		Hostname: hostname,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate checks settings needed by every process.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("WORKER_CAPACITY must be at least 1, got %d", c.Capacity)
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("WORKER_MAX_BATCH must be at least 1, got %d", c.MaxBatch)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	if c.QueueWaitTime <= 0 {
		return fmt.Errorf("QUEUE_WAIT_TIME must be positive, got %s", c.QueueWaitTime)
	}
	if c.ReceiveRetryMax < c.ReceiveRetryMin {
		return fmt.Errorf("RECEIVE_RETRY_MAX (%s) is below RECEIVE_RETRY_MIN (%s)", c.ReceiveRetryMax, c.ReceiveRetryMin)
	}
	if strings.TrimSpace(c.QueueName) == "" {
		return fmt.Errorf("JOB_QUEUE_NAME is required")
	}

	switch c.StorageProvider {
	case "localfs":
		if c.StorageLocalRoot == "" {
			return fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs storage")
		}
	case "minio":
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
	case "gdrive":
		if c.GDriveClientID == "" || c.GDriveClientSecret == "" || c.GDriveRefreshToken == "" {
			return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER: %s", c.StorageProvider)
	}

	return nil
}

// ValidateWorker checks the settings only the worker node needs.
func (c *Config) ValidateWorker() error {
	if strings.TrimSpace(c.RendererPath) == "" {
		return fmt.Errorf("RENDERER_PATH is required")
	}
	return nil
}

// VisibilityTimeout is the lease requested on receive and on every heartbeat.
func (c *Config) VisibilityTimeout() time.Duration {
	return 2 * c.HeartbeatInterval
}

// Env returns the trimmed value of k or def when unset.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// BoolEnv reads an env var as bool. If empty or invalid, returns def.
func BoolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntEnv reads an env var as int. If empty or invalid, returns def.
func IntEnv(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DurationEnv reads an env var as a time.Duration ("30s", "1m"). If empty or invalid, returns def.
func DurationEnv(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
