//go:build dev

package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

// registerPprof serves runtime profiles of the reconciler under
// /debug in dev builds. They sit behind the same private network guard as
// the API.
func registerPprof(r chi.Router, logger *log.Logger) {
	logger.Warnf("Dev build: serving profiles under /debug/pprof")
	r.Mount("/debug", middleware.Profiler())
}
