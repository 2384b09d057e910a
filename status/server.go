package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
)

// Server runs the status router on its own listener.
type Server struct {
	http     *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer wraps the router with an access log written to accessLog
// (nil disables it).
func NewServer(addr string, opts Options, accessLog io.Writer, logger *slog.Logger) *Server {
	var h http.Handler = NewRouter(opts)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("status listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	s.logger.Info("status_server_started", "addr", ln.Addr().String())

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status_server_failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
