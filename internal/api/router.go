// Package api exposes the job submission and status polling HTTP surface.
// Authentication lives upstream; the gateway forwards caller identity in
// headers and this layer only scopes queries by it.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the service's HTTP routes.
func NewRouter(jobHandler *JobHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TraceID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(CallerScope)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobHandler.SubmitJob)
			r.Get("/", jobHandler.ListJobs)
			r.Get("/{id}", jobHandler.GetJob)
			r.Post("/{id}/retry", jobHandler.RetryJob)
		})

		r.Get("/records", jobHandler.ListRecords)
	})

	return r
}
