package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(opts Options) http.Handler {
	h := NewHandler(opts)

	r := chi.NewRouter()
	r.Use(Recovery(h.log))
	r.Use(Logger(h.log))
	r.Use(PrivateSubnetOnly(h.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(DocumentContentType)

		r.Get("/state", h.GetState)
		r.Post("/plan", h.PostPlan)
		r.Post("/apply", h.PostApply)
		r.Post("/verify", h.PostVerify)
		r.Get("/health", h.CheckHealth)
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	registerPprof(r, h.log)

	return r
}
