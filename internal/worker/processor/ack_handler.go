package processor

import (
	"context"

	"rendernode/internal/pkg/errors"
)

// acknowledge stops the heartbeat and deletes the message. This is the only
// step that prevents redelivery and it runs only after a successful upload.
func (p *Processor) acknowledge(ctx context.Context, r *jobRun) (Stage, error) {
	r.hb.Stop()

	if err := p.queue.Delete(ctx, p.handle, r.msg.ReceiptHandle); err != nil {
		return StageFailed, errors.Wrap(err, "processor.acknowledge", "delete message failed")
	}
	return StageDone, nil
}
