// Package processor drives one queue message through the render pipeline:
// parse, fetch scene, render, upload, announce, acknowledge.
package processor

import (
	"context"
	"time"

	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
	"rendernode/internal/worker/renderer"
)

// Observer receives every terminal outcome, after the pipeline has stopped.
type Observer interface {
	OnTerminal(ctx context.Context, o Outcome)
}

type Deps struct {
	Queue             ports.Queue
	Handle            ports.QueueHandle
	Storage           ports.StorageProvider
	Renderer          renderer.Client
	Observer          Observer // optional
	Log               *logger.Logger
	Hostname          string
	HeartbeatInterval time.Duration
	Now               func() time.Time // optional, for tests
}

type stageFunc func(ctx context.Context, r *jobRun) (Stage, error)

type Processor struct {
	queue             ports.Queue
	handle            ports.QueueHandle
	storage           ports.StorageProvider
	renderer          renderer.Client
	observer          Observer
	log               *logger.Logger
	hostname          string
	heartbeatInterval time.Duration
	now               func() time.Time

	status *statusNotifier
	stages map[Stage]stageFunc
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	p := &Processor{
		queue:             d.Queue,
		handle:            d.Handle,
		storage:           d.Storage,
		renderer:          d.Renderer,
		observer:          d.Observer,
		log:               log,
		hostname:          d.Hostname,
		heartbeatInterval: d.HeartbeatInterval,
		now:               d.Now,
	}
	if p.heartbeatInterval <= 0 {
		p.heartbeatInterval = 30 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.observer == nil {
		p.observer = LogObserver{Log: log}
	}

	p.status = &statusNotifier{queue: d.Queue, log: log}
	p.stages = map[Stage]stageFunc{
		StageParse:       p.parseJob,
		StageFetch:       p.fetchScene,
		StageRender:      p.renderScene,
		StageUpload:      p.uploadImage,
		StageAnnounce:    p.announceFinish,
		StageAcknowledge: p.acknowledge,
	}

	return p
}

// Handle runs msg to a terminal stage. release is called exactly once: at
// upload time on the success path, or from the error path if the job fails
// earlier. The returned error is the cause of a failed job; it has already
// been logged.
func (p *Processor) Handle(ctx context.Context, msg ports.Message, release func()) error {
	r := &jobRun{
		msg:       msg,
		stage:     StageParse,
		release:   release,
		startedAt: p.now(),
	}
	ctx = logger.ContextWithJobID(ctx, msg.ID)

	log := p.log.WithJobID(msg.ID)
	log.Info("job received", "receive_count", msg.ReceiveCount)

	for r.stage != StageDone {
		fn, ok := p.stages[r.stage]
		if !ok {
			// Unreachable with the fixed stage table.
			panic("processor: no transition for stage " + r.stage.String())
		}

		next, err := fn(logger.ContextWithStage(ctx, r.stage.String()), r)
		if err != nil {
			failed := r.stage
			r.stage = StageFailed
			err = p.fail(ctx, r, failed, err)
			p.terminal(ctx, r, failed, err)
			return err
		}

		log.Debug("stage completed", "stage", r.stage.String(), "next", next.String())
		r.stage = next
	}

	// Success path: the slot was returned at upload and the heartbeat stopped
	// before delete. Both calls are no-ops here.
	r.freeSlot()
	r.hb.Stop()

	log.Info("job completed", "duration_ms", p.now().Sub(r.startedAt).Milliseconds())
	p.terminal(ctx, r, StageDone, nil)
	return nil
}

func (p *Processor) terminal(ctx context.Context, r *jobRun, stage Stage, err error) {
	p.observer.OnTerminal(ctx, Outcome{
		MessageID:    r.msg.ID,
		ReceiveCount: r.msg.ReceiveCount,
		Job:          r.job,
		Stage:        stage,
		Err:          err,
		StartedAt:    r.startedAt,
		EndedAt:      p.now(),
	})
}

// LogObserver writes terminal outcomes to the log. It is the default when
// no job ledger is configured.
type LogObserver struct {
	Log *logger.Logger
}

func (o LogObserver) OnTerminal(_ context.Context, out Outcome) {
	log := o.Log.WithJobID(out.MessageID)
	if out.Succeeded() {
		log.Info("job outcome", "outcome", "succeeded", "receive_count", out.ReceiveCount)
		return
	}
	log.Info("job outcome", "outcome", "failed", "stage", out.Stage.String(), "receive_count", out.ReceiveCount)
}
