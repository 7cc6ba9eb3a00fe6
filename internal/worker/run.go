// Package worker assembles a render node: queue, processor, pool, job
// ledger and the ops HTTP handler.
package worker

import (
	"context"
	"net/http"

	"rendernode/internal/httpapi"
	"rendernode/internal/httpapi/handlers"
	"rendernode/internal/pkg/errors"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
	"rendernode/internal/repositories"
	"rendernode/internal/worker/ledger"
	"rendernode/internal/worker/pool"
	"rendernode/internal/worker/processor"
	"rendernode/internal/worker/queue"
	"rendernode/internal/worker/renderer"
)

type Node struct {
	log     *logger.Logger
	queue   *queue.RedisQueue
	handle  ports.QueueHandle
	pool    *pool.Pool
	ops     http.Handler
	runDone chan struct{}
}

// NewNode opens the job queue and wires the pipeline. An error here means
// the node cannot start.
func NewNode(ctx context.Context, d Deps) (*Node, error) {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, queue.Options{KeyPrefix: cfg.QueueKeyPrefix})
	h, err := q.CreateOrOpen(ctx, cfg.QueueName)
	if err != nil {
		return nil, errors.Wrap(err, "worker.open_queue", "cannot open job queue")
	}
	log.Info("job queue opened", "queue", h.Name, "url", h.URL)

	rc := d.Renderer
	if rc == nil {
		rc = renderer.NewExecClient(cfg.RendererPath, cfg.RendererArgs, nil)
	}

	checks := map[string]handlers.Check{"redis": q.Ping}

	var observer processor.Observer
	if d.DB != nil {
		repo := repositories.NewJobRepository(d.DB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "worker.ledger", "cannot prepare job ledger")
		}
		observer = ledger.NewObserver(repo, log)
		checks["postgres"] = repo.Ping
	}
	// Providers without a Ping are left out of the deep check.
	if pinger, ok := d.Storage.(interface{ Ping(context.Context) error }); ok {
		checks["storage"] = pinger.Ping
	}

	proc := processor.New(processor.Deps{
		Queue:             q,
		Handle:            h,
		Storage:           d.Storage,
		Renderer:          rc,
		Observer:          observer,
		Log:               log,
		Hostname:          cfg.Hostname,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	p := pool.New(q, h, proc, pool.Config{
		Capacity:   cfg.Capacity,
		MaxBatch:   cfg.MaxBatch,
		Visibility: cfg.VisibilityTimeout(),
		WaitTime:   cfg.QueueWaitTime,
		RetryMin:   cfg.ReceiveRetryMin,
		RetryMax:   cfg.ReceiveRetryMax,
	}, log)

	n := &Node{
		log:     log,
		queue:   q,
		handle:  h,
		pool:    p,
		runDone: make(chan struct{}),
	}
	n.ops = httpapi.NewOpsRouter(httpapi.Deps{
		Log:      log,
		Service:  cfg.Hostname,
		JobQueue: h,
		Pool:     p,
		Depth:    q,
		Checks:   checks,
	})
	return n, nil
}

// Run polls for work until ctx is done. Jobs already dispatched keep
// running; Stop drains them.
func (n *Node) Run(ctx context.Context) {
	defer close(n.runDone)
	n.pool.Run(ctx)
}

// Stop waits for Run to return and then drains in-flight jobs until ctx
// ends, after which remaining renders are cancelled.
func (n *Node) Stop(ctx context.Context) error {
	select {
	case <-n.runDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := n.pool.Drain(ctx)
	n.log.Info("node stopped", "stats", n.pool.Stats())
	return err
}

// Handler serves /health and /stats.
func (n *Node) Handler() http.Handler { return n.ops }

func (n *Node) Stats() pool.Stats { return n.pool.Stats() }

func (n *Node) Queue() ports.QueueHandle { return n.handle }
