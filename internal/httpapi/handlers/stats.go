package handlers

import (
	"net/http"

	"rendernode/internal/httpkit"
	"rendernode/internal/pkg/errors"
)

// Stats reports pool counters and, when available, the job queue depth.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) error {
	if h.pool == nil {
		return errors.Unavailable("worker pool")
	}

	out := map[string]any{
		"service":  h.service,
		"pool":     h.pool.Stats(),
	}

	if h.depth != nil {
		pending, inflight, err := h.depth.Depth(r.Context(), h.jobQueue)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeQueue, "handlers.stats", "queue depth unavailable")
		}
		out["queue"] = map[string]any{
			"name":     h.jobQueue.Name,
			"pending":  pending,
			"inflight": inflight,
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}
