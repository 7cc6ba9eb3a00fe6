package processor

import (
	"context"

	"rendernode/internal/contracts/job"
	"rendernode/internal/pkg/errors"
)

// renderScene announces the start and runs the renderer. The "started" status is sent in the background; a slow or
// failing status queue never delays the render.
func (p *Processor) renderScene(ctx context.Context, r *jobRun) (Stage, error) {
	started := p.now().UTC()
	r.job.StartedTime = &started
	r.job.State = job.StateStarted

	r.startSent = p.status.sendAsync(ctx, r, "started")

	p.log.FromContext(ctx).Info("render started", "scene_bytes", len(r.scene))

	image, err := p.renderer.Render(ctx, r.scene)
	if err != nil {
		return StageFailed, errors.Wrap(err, "processor.render", "render failed")
	}
	r.image = image

	return StageUpload, nil
}
