// pkg/server/server.go
// Package server serves the watcher's health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/slimjob/pkg/server/httpx"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is a small HTTP server exposing /healthz, /readyz and /metrics.
type Server struct {
	addr  string
	ready atomic.Bool
	http  *http.Server
}

// New creates a Server for addr serving metrics gathered from g.
func New(addr string, g prometheus.Gatherer) *Server {
	s := &Server{addr: addr}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(g, &s.ready),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// SetReady flips the /readyz state.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. If bound is non-nil it receives the listening
// address once the socket is open.
func (s *Server) Run(ctx context.Context, bound chan<- string) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	if bound != nil {
		bound <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "server").Str("addr", ln.Addr().String()).Msg("Metrics server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Str("component", "server").Msg("Metrics server stopped")
	return nil
}
