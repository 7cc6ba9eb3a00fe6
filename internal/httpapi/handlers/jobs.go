package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"rendernode/internal/contracts/job"
	"rendernode/internal/httpkit"
	"rendernode/internal/models"
	"rendernode/internal/pkg/errors"
	"rendernode/internal/repositories"
	"rendernode/internal/worker/queue"
)

const maxJobBody = 1 << 20

// PostJob validates a render request and sends it unchanged to the job
// queue. Keys the node does not interpret are passed through.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJobBody))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "handlers.post_job", "request body too large or unreadable")
	}

	msg, err := job.Parse(body)
	if err != nil {
		return err
	}
	if _, err := queue.ParseQueueURL(msg.OutputQueueUrl); err != nil {
		return err
	}

	id, err := h.queue.Send(ctx, h.jobQueue.URL, body)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeQueue, "handlers.post_job", "queue send failed")
	}

	log := h.log.FromContext(ctx).WithJobID(id)
	log.Info("job submitted", "queue", h.jobQueue.Name, "scene", msg.SceneBucket+"/"+msg.SceneKey)

	if h.jobs != nil {
		rec := models.JobRecord{
			MessageID:    id,
			SceneBucket:  msg.SceneBucket,
			SceneKey:     msg.SceneKey,
			SceneIndex:   msg.SceneIndex,
			OutputBucket: msg.OutputBucket,
			OutputKey:    msg.OutputKey,
		}
		if err := h.jobs.RecordSubmitted(ctx, rec); err != nil {
			log.Warn("ledger write failed", "error", err.Error())
		}
	}

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job": map[string]any{
			"id":    id,
			"state": models.JobSubmitted,
			"queue": h.jobQueue.Name,
		},
	})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	if h.jobs == nil {
		return errors.Unavailable("job ledger")
	}

	limit := 50
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 || v > 200 {
			return errors.ValidationField("limit", "limit must be between 1 and 200")
		}
		limit = v
	}

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		return errors.Wrap(err, "handlers.list_jobs", "ledger query failed")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	if h.jobs == nil {
		return errors.Unavailable("job ledger")
	}

	id := chi.URLParam(r, "jobId")
	rec, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return errors.NotFound("job", id)
		}
		return errors.Wrap(err, "handlers.get_job", "ledger query failed")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": rec})
	return nil
}
