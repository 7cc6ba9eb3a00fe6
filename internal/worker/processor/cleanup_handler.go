package processor

import (
	"context"

	"rendernode/internal/pkg/errors"
)

// fail is the single error path. It stops the heartbeat, returns the slot if
// the job still holds it and logs the failure. The message is left in the
// queue so it is redelivered once its lease runs out.
func (p *Processor) fail(_ context.Context, r *jobRun, failed Stage, cause error) error {
	r.hb.Stop()
	if r.startSent != nil {
		<-r.startSent
	}

	log := p.log.WithJobID(r.msg.ID).WithStage(failed.String())

	args := []any{"error", truncate(cause.Error(), 2000), "receive_count", r.msg.ReceiveCount}
	var nodeErr *errors.Error
	if errors.As(cause, &nodeErr) {
		args = append(args, "code", string(nodeErr.Code), "op", nodeErr.Op)
		log = log.WithFields(nodeErr.Fields)
	}

	if r.freeSlot() {
		log.Error("job failed", args...)
	} else {
		// The pool stopped tracking this job at upload time.
		log.Error("job failed after releasing its slot", args...)
	}

	return cause
}
