package processor

import (
	"bytes"
	"context"

	"rendernode/internal/contracts/job"
	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

// uploadImage marks the job finished and writes the image. The capacity
// slot is returned before the put is issued: uploading is not CPU bound
// and must not hold back the next job.
func (p *Processor) uploadImage(ctx context.Context, r *jobRun) (Stage, error) {
	finished := p.now().UTC()
	r.job.FinishTime = &finished
	r.job.State = job.StateFinished

	r.freeSlot()

	out, err := p.storage.PutObject(ctx, ports.PutObjectInput{
		Bucket:      r.job.OutputBucket,
		Key:         r.job.OutputKey,
		ContentType: ContentTypeForKey(r.job.OutputKey),
		Reader:      bytes.NewReader(r.image),
		Size:        int64(len(r.image)),
	})
	if err != nil {
		return StageFailed, errors.WrapWithCode(err, errors.CodeStorage, "processor.upload", "put image failed").
			WithField("bucket", r.job.OutputBucket).
			WithField("key", r.job.OutputKey)
	}

	p.log.FromContext(ctx).Info("image uploaded",
		"bucket", r.job.OutputBucket,
		"key", out.Key,
		"size", out.Size,
	)
	return StageAnnounce, nil
}

// announceFinish sends the final status. Delivery is best effort: the
// image is already stored, so a failure is logged and the job proceeds to
// acknowledgement.
func (p *Processor) announceFinish(ctx context.Context, r *jobRun) (Stage, error) {
	uploaded := p.now().UTC()
	r.job.UploadedTime = &uploaded

	if r.startSent != nil {
		select {
		case <-r.startSent:
		case <-ctx.Done():
		}
	}
	p.status.send(ctx, r, "finished")

	return StageAcknowledge, nil
}
