// Package httpapi wires the HTTP routes of the intake API and of the worker
// ops listener.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rendernode/internal/httpapi/handlers"
	"rendernode/internal/pkg/logger"
	"rendernode/internal/pkg/middleware"
)

type Deps = handlers.Deps

func newBaseRouter(log *logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	return r
}

// NewRouter builds the intake API: job submission, ledger reads and health.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	r := newBaseRouter(log)
	h := handlers.New(d)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- JOBS ----
	r.Post("/jobs", middleware.WrapHandler(log, h.PostJob))
	r.Get("/jobs", middleware.WrapHandler(log, h.ListJobs))
	r.Get("/jobs/{jobId}", middleware.WrapHandler(log, h.GetJob))

	return r
}

// NewOpsRouter builds the worker's ops listener: health and pool stats.
func NewOpsRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	r := newBaseRouter(log)
	h := handlers.New(d)

	r.Get("/health", h.Health)
	r.Get("/stats", middleware.WrapHandler(log, h.Stats))

	return r
}
