// Package handlers serves the intake API and the worker ops endpoints.
package handlers

import (
	"context"

	"rendernode/internal/models"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
	"rendernode/internal/worker/pool"
)

// JobSender enqueues a raw job body on a queue URL.
type JobSender interface {
	Send(ctx context.Context, queueURL string, body []byte) (string, error)
}

// JobStore is the job ledger as seen by the API.
type JobStore interface {
	RecordSubmitted(ctx context.Context, rec models.JobRecord) error
	List(ctx context.Context, limit int) ([]models.JobRecord, error)
	Get(ctx context.Context, messageID string) (*models.JobRecord, error)
}

// PoolStats exposes the worker pool counters.
type PoolStats interface {
	Stats() pool.Stats
}

// QueueDepth reports the number of pending and in-flight messages.
type QueueDepth interface {
	Depth(ctx context.Context, h ports.QueueHandle) (pending, inflight int64, err error)
}

// Check is one dependency test run by the deep health check.
type Check func(ctx context.Context) error

type Deps struct {
	Log     *logger.Logger
	Service string

	// Intake API.
	Queue    JobSender
	JobQueue ports.QueueHandle
	Jobs     JobStore // optional

	// Worker ops.
	Pool  PoolStats
	Depth QueueDepth

	Checks map[string]Check
}

type Handler struct {
	log      *logger.Logger
	service  string
	queue    JobSender
	jobQueue ports.QueueHandle
	jobs     JobStore
	pool     PoolStats
	depth    QueueDepth
	checks   map[string]Check
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		log:      log.WithComponent("http"),
		service:  d.Service,
		queue:    d.Queue,
		jobQueue: d.JobQueue,
		jobs:     d.Jobs,
		pool:     d.Pool,
		depth:    d.Depth,
		checks:   d.Checks,
	}
}
