package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/config"
	apperrors "github.com/lumenhour/lumenhour/internal/errors"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/server/handlers"
	servermw "github.com/lumenhour/lumenhour/internal/server/middleware"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	host     string
	port     int
	api      *handlers.API
	timeouts config.ServerConfig
	noHealth bool
	pprof    bool
}

// Option configures a Server.
type Option func(*Server)

// WithAPI mounts the golden-hour API and optimizer admin routes.
func WithAPI(api *handlers.API) Option {
	return func(s *Server) { s.api = api }
}

// WithTimeouts applies the read, write and idle timeouts from cfg. Zero
// values keep the defaults.
func WithTimeouts(cfg config.ServerConfig) Option {
	return func(s *Server) { s.timeouts = cfg }
}

// WithDiagnostics applies the health and debug settings. Health routes stay
// on unless health.Enabled is false. pprof is mounted under /debug only when
// debug mode and pprof are both enabled.
func WithDiagnostics(health config.HealthConfig, debug config.DebugConfig) Option {
	return func(s *Server) {
		s.noHealth = !health.Enabled
		s.pprof = debug.Enabled && debug.PprofEnabled
	}
}

// New creates a new HTTP server instance
func New(host string, port int, opts ...Option) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("no route for "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError(req.Method+" is not allowed on "+req.URL.Path))
	})

	s := &Server{
		router: r,
		host:   host,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Register routes
	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.timeouts.ReadTimeout, defaultReadTimeout),
		WriteTimeout: orDefault(s.timeouts.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  orDefault(s.timeouts.IdleTimeout, defaultIdleTimeout),
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
