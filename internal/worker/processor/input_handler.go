package processor

import (
	"context"
	"io"

	"rendernode/internal/contracts/job"
	"rendernode/internal/pkg/errors"
)

// fetchScene starts the lease heartbeat, downloads the scene document and
// narrows it to SceneIndex when one is given. Nothing has been announced
// yet, so a failure here leaves no trace besides the log.
func (p *Processor) fetchScene(ctx context.Context, r *jobRun) (Stage, error) {
	r.hb = StartHeartbeat(ctx, p.queue, p.handle, r.msg.ReceiptHandle, p.heartbeatInterval, p.log.WithJobID(r.msg.ID))

	rc, _, _, err := p.storage.GetObject(ctx, r.job.SceneBucket, r.job.SceneKey)
	if err != nil {
		return StageFailed, errors.WrapWithCode(err, errors.CodeStorage, "processor.fetch", "get scene failed").
			WithField("bucket", r.job.SceneBucket).
			WithField("key", r.job.SceneKey)
	}
	defer rc.Close()

	doc, err := io.ReadAll(rc)
	if err != nil {
		return StageFailed, errors.WrapWithCode(err, errors.CodeStorage, "processor.fetch", "read scene failed")
	}

	scene, err := job.SelectScene(doc, r.job.SceneIndex)
	if err != nil {
		return StageFailed, errors.Wrap(err, "processor.fetch", "invalid scene")
	}
	r.scene = scene

	if r.job.HasSceneIndex() {
		p.log.FromContext(ctx).Debug("scene element selected", "scene_index", *r.job.SceneIndex, "doc_bytes", len(doc))
	}

	return StageRender, nil
}
