package processor

import (
	"context"
	"encoding/json"

	"rendernode/internal/pkg/logger"
	"rendernode/internal/ports"
)

// statusNotifier posts job snapshots to the job's OutputQueueUrl.
type statusNotifier struct {
	queue ports.Queue
	log   *logger.Logger
}

// sendAsync snapshots the job now and sends it in the background. The
// returned channel is closed when the send has settled.
func (s *statusNotifier) sendAsync(ctx context.Context, r *jobRun, label string) chan struct{} {
	done := make(chan struct{})
	body, err := json.Marshal(r.job)
	if err != nil {
		s.log.WithJobID(r.msg.ID).Error("encode status failed", "status", label, "error", err.Error())
		close(done)
		return done
	}

	jobID, queueURL := r.msg.ID, r.job.OutputQueueUrl
	go func() {
		defer close(done)
		s.post(ctx, jobID, queueURL, label, body)
	}()
	return done
}

// send snapshots the job and sends it synchronously.
func (s *statusNotifier) send(ctx context.Context, r *jobRun, label string) {
	body, err := json.Marshal(r.job)
	if err != nil {
		s.log.WithJobID(r.msg.ID).Error("encode status failed", "status", label, "error", err.Error())
		return
	}
	s.post(ctx, r.msg.ID, r.job.OutputQueueUrl, label, body)
}

func (s *statusNotifier) post(ctx context.Context, jobID, queueURL, label string, body []byte) {
	log := s.log.WithJobID(jobID)
	if _, err := s.queue.Send(ctx, queueURL, body); err != nil {
		log.Warn("status update failed", "status", label, "queue_url", queueURL, "error", err.Error())
		return
	}
	log.Debug("status update sent", "status", label)
}
