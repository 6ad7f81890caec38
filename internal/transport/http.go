package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/config"
)

// HTTPServer represents an HTTP server
type HTTPServer struct {
	log         *slog.Logger
	cfg         config.HTTPConfig
	handler     http.Handler
	mu          sync.Mutex
	server      *http.Server
	stopped     bool
	middlewares []func(http.Handler) http.Handler
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(log *slog.Logger, cfg config.HTTPConfig, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		log:         log,
		cfg:         cfg,
		handler:     handler,
		middlewares: make([]func(http.Handler) http.Handler, 0),
	}
}

// Use adds middleware to the server. The first middleware added is the
// outermost.
func (s *HTTPServer) Use(middleware func(http.Handler) http.Handler) {
	s.middlewares = append(s.middlewares, middleware)
}

// Start listens on the configured address and serves until Shutdown
func (s *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve serves on listener until Shutdown
func (s *HTTPServer) Serve(listener net.Listener) error {
	handler := s.handler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return listener.Close()
	}
	s.server = server
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.stopped = true
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
