// Package pool is the admission-controlled coordinator of a render node. It
// requests at most as many messages as it has free slots, runs one handler
// per message and never has more than one receive call in flight.
package pool

import (
	"context"
	"sync"
	"time"

	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
)

// Handler processes one message. It must call release exactly once when
// its CPU-bound phase is over; extra calls are ignored.
type Handler interface {
	Handle(ctx context.Context, msg ports.Message, release func()) error
}

type Config struct {
	Capacity   int           // concurrent jobs
	MaxBatch   int           // most messages asked for in one receive, default 10
	Visibility time.Duration // lease requested on receive
	WaitTime   time.Duration // long-poll wait per receive
	RetryMin   time.Duration // first backoff after a receive error
	RetryMax   time.Duration // backoff ceiling
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Capacity   int   `json:"capacity"`
	Running    int   `json:"running"`
	Requested  int   `json:"requested"`
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
}

type pollResult int

const (
	pollBusy     pollResult = iota // a receive is already outstanding
	pollFull                       // no free slot
	pollReceived                   // receive completed, messages (if any) dispatched
	pollFailed                     // receive returned an error
)

type Pool struct {
	queue   ports.Queue
	handle  ports.QueueHandle
	handler Handler
	cfg     Config
	log     *logger.Logger

	mu         sync.Mutex
	running    int
	requested  int
	dispatched int64
	succeeded  int64
	failed     int64

	wake chan struct{}
	wg   sync.WaitGroup

	jobsCtx    context.Context
	cancelJobs context.CancelFunc

	sleep func(ctx context.Context, d time.Duration) bool
}

func New(q ports.Queue, h ports.QueueHandle, handler Handler, cfg Config, log *logger.Logger) *Pool {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.MaxBatch < 1 {
		cfg.MaxBatch = 10
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = time.Second
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = cfg.RetryMin
	}
	if log == nil {
		log = logger.NewDefault()
	}

	jobsCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:      q,
		handle:     h,
		handler:    handler,
		cfg:        cfg,
		log:        log.WithComponent("pool").WithQueue(h.Name),
		wake:       make(chan struct{}, 1),
		jobsCtx:    jobsCtx,
		cancelJobs: cancel,
		sleep:      sleepCtx,
	}
}

// Run polls for work until ctx is done. In-flight jobs keep running on
// their own context; call Drain to wait for them.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("pool started",
		"capacity", p.cfg.Capacity,
		"visibility", p.cfg.Visibility.String(),
	)

	backoff := p.cfg.RetryMin
	for ctx.Err() == nil {
		switch p.lookForWork(ctx) {
		case pollReceived:
			backoff = p.cfg.RetryMin
		case pollFull, pollBusy:
			select {
			case <-p.wake:
			case <-ctx.Done():
			}
		case pollFailed:
			if ctx.Err() == nil && p.sleep(ctx, backoff) {
				backoff = min(2*backoff, p.cfg.RetryMax)
			}
		}
	}

	p.log.Info("pool stopped polling", "running", p.Stats().Running)
}

// lookForWork performs one admission decision and, if a slot is free, one
// receive call.
func (p *Pool) lookForWork(ctx context.Context) pollResult {
	count, res := p.reserve()
	if res != pollReceived {
		return res
	}

	msgs, err := p.queue.Receive(ctx, p.handle, count, p.cfg.Visibility, p.cfg.WaitTime)
	if err != nil {
		p.settle(0)
		if ctx.Err() == nil {
			p.log.Warn("receive failed", "error", err.Error(), "requested", count)
		}
		return pollFailed
	}

	// A queue that over-delivers leaves the surplus leased but unprocessed;
	// it is redelivered when the lease expires.
	if len(msgs) > count {
		p.log.Warn("queue returned more messages than requested", "requested", count, "received", len(msgs))
		msgs = msgs[:count]
	}

	p.settle(len(msgs))
	for _, m := range msgs {
		p.dispatch(m)
	}
	if len(msgs) > 0 {
		p.log.Debug("dispatched messages", "count", len(msgs))
	}
	return pollReceived
}

// reserve commits capacity to a receive call.
func (p *Pool) reserve() (int, pollResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.requested != 0 {
		return 0, pollBusy
	}
	count := min(p.cfg.MaxBatch, p.cfg.Capacity-p.running)
	if count <= 0 {
		p.log.Debug("at capacity", "running", p.running, "capacity", p.cfg.Capacity)
		return 0, pollFull
	}
	p.requested = count
	return count, pollReceived
}

// settle turns the reserved capacity into running jobs in one step so the
// sum of both counters never exceeds capacity.
func (p *Pool) settle(n int) {
	p.mu.Lock()
	p.requested = 0
	p.running += n
	p.dispatched += int64(n)
	p.mu.Unlock()
}

func (p *Pool) dispatch(msg ports.Message) {
	var once sync.Once
	release := func() {
		once.Do(func() {
			p.mu.Lock()
			p.running--
			p.mu.Unlock()

			select {
			case p.wake <- struct{}{}:
			default:
			}
		})
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer release()

		err := p.handler.Handle(p.jobsCtx, msg, release)

		p.mu.Lock()
		if err != nil {
			p.failed++
		} else {
			p.succeeded++
		}
		p.mu.Unlock()
	}()
}

// Drain waits for in-flight jobs. If ctx ends first the jobs are cancelled,
// which kills running renders; their messages return to the queue when the
// lease expires.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelJobs()
		return nil
	case <-ctx.Done():
		p.log.Warn("drain timeout, cancelling in-flight jobs", "running", p.Stats().Running)
		p.cancelJobs()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:   p.cfg.Capacity,
		Running:    p.running,
		Requested:  p.requested,
		Dispatched: p.dispatched,
		Succeeded:  p.succeeded,
		Failed:     p.failed,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
