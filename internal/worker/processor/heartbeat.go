package processor

import (
	"context"
	"sync"
	"time"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
)

// Heartbeat renews a message's visibility lease every interval, asking for
// twice the interval each time so one missed tick still leaves slack.
// Failed renewals are logged only: if the lease lapses the queue hands the
// message to another node.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat launches the renewal loop. It ends on Stop or when ctx is
// done.
func StartHeartbeat(ctx context.Context, q ports.Queue, h ports.QueueHandle, receipt string, interval time.Duration, log *logger.Logger) *Heartbeat {
	hb := &Heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(hb.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-hb.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				extendCtx, cancel := context.WithTimeout(ctx, interval)
				err := q.ExtendVisibility(extendCtx, h, receipt, 2*interval)
				cancel()

				switch {
				case err == nil:
					log.Debug("lease extended", "visibility", (2 * interval).String())
				case errors.IsCode(err, errors.CodeLeaseLost):
					log.Warn("lease lost, message may be redelivered", "error", err.Error())
				default:
					log.Warn("heartbeat failed", "error", err.Error())
				}
			}
		}
	}()

	return hb
}

// Stop ends the heartbeat and waits for an in-flight renewal to return, so
// no renewal lands after the message is deleted. Safe to call on a nil
// Heartbeat and more than once.
func (hb *Heartbeat) Stop() {
	if hb == nil {
		return
	}
	hb.once.Do(func() { close(hb.stop) })
	<-hb.done
}
