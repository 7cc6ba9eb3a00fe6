// Package shutdown coordinates graceful stop of a render node: the node
// context is cancelled first so no new work is admitted, then registered
// stages run in reverse registration order under one deadline.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rendernode/internal/pkg/logger"
)

// Stage is one step of the shutdown sequence.
type Stage struct {
	Name string
	Stop func(ctx context.Context) error
}

// Manager owns the node context and the shutdown stages.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	stages []Stage

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	errs []error
}

// NewManager creates a manager. A zero timeout defaults to 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Context is cancelled as soon as shutdown begins. Long-running loops
// (receive polling, HTTP serving) should select on it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a stage. Stages run last-registered first, so register
// resources before the components that use them.
func (m *Manager) Register(name string, stop func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, Stage{Name: name, Stop: stop})
	m.log.Debug("registered shutdown stage", "name", name)
}

// RegisterSimple adds a stage that cannot fail.
func (m *Manager) RegisterSimple(name string, stop func()) {
	m.Register(name, func(context.Context) error {
		stop()
		return nil
	})
}

// Wait blocks until SIGINT/SIGTERM or until ctx is done, then shuts down.
func (m *Manager) Wait(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	case <-m.ctx.Done():
	}

	m.Shutdown()
}

// Shutdown cancels the node context and runs every stage in LIFO order.
// Stages share a single deadline; a stage that overruns it still receives
// the expired context so it can abandon its work. Safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		stages := make([]Stage, len(m.stages))
		copy(stages, m.stages)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("starting graceful shutdown", "stages", len(stages), "timeout", m.timeout.String())

		for i := len(stages) - 1; i >= 0; i-- {
			st := stages[i]
			start := time.Now()
			if err := st.Stop(ctx); err != nil {
				m.log.Error("shutdown stage failed",
					"name", st.Name,
					"error", err.Error(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
				m.errs = append(m.errs, err)
				continue
			}
			m.log.Debug("shutdown stage completed",
				"name", st.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}

		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout exceeded")
		} else {
			m.log.Info("graceful shutdown completed")
		}
		close(m.done)
	})
}

// Done is closed once every stage has run.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Errors returns the errors reported by failed stages. Valid after Done.
func (m *Manager) Errors() []error {
	<-m.done
	return m.errs
}
