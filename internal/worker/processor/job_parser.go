package processor

import (
	"context"

	"rendernode/internal/contracts/job"
	"rendernode/internal/pkg/errors"
)

// parseJob decodes the message body and stamps the receipt provenance.
// It makes no external calls, so a malformed body fails before anything
// is fetched, sent or rendered.
func (p *Processor) parseJob(_ context.Context, r *jobRun) (Stage, error) {
	m, err := job.Parse(r.msg.Body)
	if err != nil {
		return StageFailed, errors.Wrap(err, "processor.parse", "invalid job message")
	}

	received := p.now().UTC()
	m.Hostname = p.hostname
	m.ReceivedTime = &received
	m.State = job.StateReceived
	r.job = m

	return StageFetch, nil
}
