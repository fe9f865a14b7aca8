// Package server exposes the chat pipeline over HTTP.
//
// Endpoints:
//
//	POST /api/chat  →  streamed coaching response
//	GET  /health    →  liveness probe
//	GET  /ready     →  readiness probe
//
// File structure:
//   - server.go: server setup and lifecycle
//   - chat.go: the chat endpoint
//   - stream.go: delta/metadata wire framing
//   - middleware.go: recovery and logging
//   - ratelimit.go: per-user limiter registry
//   - response.go: JSON helpers
//   - health.go: probes
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/solace-labs/solace/internal/log"
)

const (
	// ShutdownTimeout caps graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style header dribbling.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP front of the pipeline.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// New creates a Server with all routes registered.
func New(chat *ChatHandler, health *HealthHandler, logger log.Logger) *Server {
	mux := http.NewServeMux()
	chat.RegisterRoutes(mux)
	health.RegisterRoutes(mux)

	return &Server{mux: mux, logger: logger.With("component", "server")}
}

// Handler returns the handler with middleware applied.
// Order: recovery → logging → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
// WriteTimeout stays unset: chat responses stream for as long as the
// model talks.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
