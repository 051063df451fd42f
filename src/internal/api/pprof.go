//go:build !dev

package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

func registerPprof(chi.Router, *log.Logger) {}
