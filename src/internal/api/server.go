package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	log        *log.Logger
}

// NewServer creates a server for opts listening on addr.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     NewRouter(opts),
			ReadTimeout: 15 * time.Second,
			// Applies wait for interfaces to settle.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		log: logger.WithField("component", "api"),
	}
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Infof("Listening on %s", ln.Addr())
	s.log.Infof("Example: curl http://%s/api/v1/state", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Infof("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
