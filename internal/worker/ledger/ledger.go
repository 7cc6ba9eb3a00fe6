// Package ledger records terminal job outcomes in the job database.
package ledger

import (
	"context"
	"time"

	"rendernode/internal/models"
	"rendernode/internal/pkg/errors"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/worker/processor"
)

// Recorder persists one outcome row.
type Recorder interface {
	RecordOutcome(ctx context.Context, rec models.JobRecord) error
}

// Observer writes each outcome to the ledger and to the log. A ledger
// failure is logged and never affects the job.
type Observer struct {
	rec     Recorder
	log     *logger.Logger
	next    processor.Observer
	timeout time.Duration
}

func NewObserver(rec Recorder, log *logger.Logger) *Observer {
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("ledger")
	return &Observer{
		rec:     rec,
		log:     log,
		next:    processor.LogObserver{Log: log},
		timeout: 5 * time.Second,
	}
}

func (o *Observer) OnTerminal(ctx context.Context, out processor.Outcome) {
	o.next.OnTerminal(ctx, out)

	// The outcome still gets written while the node is shutting down.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if err := o.rec.RecordOutcome(wctx, RecordFromOutcome(out)); err != nil {
		o.log.WithJobID(out.MessageID).Warn("ledger write failed", "error", err.Error())
	}
}

// RecordFromOutcome maps an outcome onto a ledger row.
func RecordFromOutcome(out processor.Outcome) models.JobRecord {
	rec := models.JobRecord{
		MessageID:    out.MessageID,
		State:        models.JobSucceeded,
		Stage:        out.Stage.String(),
		ReceiveCount: out.ReceiveCount,
	}
	if !out.Succeeded() {
		rec.State = models.JobFailed
		msg := "unknown error"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		rec.ErrorText = &msg
		if code, ok := errors.ExitCode(out.Err); ok {
			rec.ExitCode = &code
		}
	}

	if j := out.Job; j != nil {
		rec.Hostname = j.Hostname
		rec.SceneBucket = j.SceneBucket
		rec.SceneKey = j.SceneKey
		rec.SceneIndex = j.SceneIndex
		rec.OutputBucket = j.OutputBucket
		rec.OutputKey = j.OutputKey
		rec.ReceivedAt = j.ReceivedTime
		rec.StartedAt = j.StartedTime
		rec.FinishedAt = j.FinishTime
		rec.UploadedAt = j.UploadedTime
	}
	return rec
}
