// Package apiserver implements the HTTP listener component.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/moolen/ferry/internal/lifecycle"
	"github.com/moolen/ferry/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// ReadinessChecker is an interface for checking component readiness
type ReadinessChecker interface {
	IsReady() bool
}

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func() bool

// IsReady calls f.
func (f ReadinessFunc) IsReady() bool {
	return f()
}

// Config holds listener settings.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration // Grace period for in-flight requests in Stop
}

// DefaultConfig returns the defaults for a local listener.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8080,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Option configures a Server.
type Option func(*Server)

// WithRoutes mounts application routes on the router built in Prepare.
func WithRoutes(register func(r chi.Router)) Option {
	return func(s *Server) {
		s.routes = append(s.routes, register)
	}
}

// WithReadinessChecker backs the /ready endpoint.
func WithReadinessChecker(rc ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessChecker = rc
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server is the HTTP listener. It binds in Start and drains in-flight
// requests in Stop.
type Server struct {
	cfg              Config
	routes           []func(r chi.Router)
	readinessChecker ReadinessChecker
	gatherer         prometheus.Gatherer
	logger           *logging.Logger

	router chi.Router
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
	state    lifecycle.StateTracker
}

var _ lifecycle.Component = (*Server)(nil)

// New creates a listener. Routes are registered in Prepare.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logging.GetLogger("apiserver"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare validates the configuration, registers all routes and configures
// the HTTP server.
func (s *Server) Prepare(ctx context.Context) error {
	if s.cfg.Port < 0 || s.cfg.Port > 65535 {
		return fmt.Errorf("apiserver: invalid port %d", s.cfg.Port)
	}
	if s.cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("apiserver: shutdown timeout cannot be negative, got %s", s.cfg.ShutdownTimeout)
	}

	s.router = s.newRouter()
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.state.Set(lifecycle.StatePrepared)
	return nil
}

// Start binds the listening socket and serves requests in the background.
// Binding errors such as an address in use are returned directly.
func (s *Server) Start(ctx context.Context) error {
	if s.server == nil {
		return errors.New("apiserver: Start called before Prepare")
	}

	// Check context isn't already cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		s.state.Fail()
		return fmt.Errorf("apiserver: listen on %s: %w", s.server.Addr, err)
	}

	serveErr := make(chan error, 1)
	s.mu.Lock()
	s.listener = ln
	s.serveErr = serveErr
	s.mu.Unlock()

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
		serveErr <- err
	}()

	s.state.Set(lifecycle.StateStarted)
	s.logger.Info("API server started and listening on %s", ln.Addr())
	return nil
}

// Stop stops accepting connections and waits for in-flight requests. If
// they do not finish within ShutdownTimeout or before ctx is done, the
// remaining connections are closed and Stop still succeeds.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	serveErr := s.serveErr
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	s.logger.Info("Stopping API server...")

	shutdownCtx := ctx
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("API server shutdown deadline reached (%v), closing remaining connections", err)
		if closeErr := s.server.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			<-serveErr
			s.state.Fail()
			return fmt.Errorf("apiserver: close after shutdown deadline: %w", closeErr)
		}
	}

	<-serveErr
	s.state.Set(lifecycle.StateStopped)
	s.logger.Info("API server stopped")
	return nil
}

// ListenAddr returns the bound address, or nil when not started.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the router built in Prepare.
func (s *Server) Handler() http.Handler {
	return s.router
}

// State returns the component state.
func (s *Server) State() lifecycle.State {
	return s.state.Load()
}
