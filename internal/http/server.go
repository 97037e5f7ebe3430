// Package http provides the HTTP server and API handlers for restreamer.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/restreamer/internal/config"
	"github.com/jmylchreest/restreamer/internal/http/middleware"
	"github.com/jmylchreest/restreamer/internal/metrics"
)

// apiPrefix is the path prefix subject to rate limiting.
const apiPrefix = "/api/"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind to (default: "0.0.0.0").
	Host string
	// Port is the port to listen on (default: 5000).
	Port int
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
	// ShutdownTimeout is the maximum duration to wait for active connections to close.
	ShutdownTimeout time.Duration
	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            5000,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// ServerConfigFrom converts application configuration into a ServerConfig.
func ServerConfigFrom(c config.ServerConfig) ServerConfig {
	cfg := DefaultServerConfig()
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout
	}
	cfg.CORSOrigins = c.CORSOrigins
	return cfg
}

// Option configures optional server components.
type Option func(*Server)

// WithMetrics records request metrics and serves them at /metrics.
// updateGauges is called before each scrape.
func WithMetrics(m *metrics.Metrics, updateGauges func()) Option {
	return func(s *Server) {
		s.metrics = m
		s.updateGauges = updateGauges
	}
}

// WithRateLimiter limits requests under /api/ per client IP.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// Server represents the HTTP server.
type Server struct {
	config       ServerConfig
	router       *chi.Mux
	api          huma.API
	httpServer   *http.Server
	logger       *slog.Logger
	metrics      *metrics.Metrics
	updateGauges func()
	limiter      *middleware.RateLimiter
}

// NewServer creates a new HTTP server with the given configuration.
// The version parameter is used in the OpenAPI document and should match the build version.
func NewServer(cfg ServerConfig, logger *slog.Logger, version string, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger, "/health", "/metrics"))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	if s.metrics != nil {
		router.Use(metrics.RequestMiddleware(s.metrics))
	}
	if s.limiter != nil {
		router.Use(apiOnly(s.limiter.Middleware))
	}

	humaConfig := huma.DefaultConfig("restreamer API", version)
	humaConfig.Info.Description = "Relays stored video to RTMP destinations on demand or on a schedule"
	humaConfig.OpenAPIPath = "/openapi"

	api := humachi.New(router, humaConfig)

	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler(s.updateGauges))
	}

	s.router = router
	s.api = api
	s.httpServer = &http.Server{
		Addr:              s.Address(),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

// apiOnly applies mw to requests under the API prefix.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, apiPrefix) {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the Chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Address returns the host:port the server listens on.
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		slog.String("address", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and handles graceful shutdown.
// It blocks until the server is shut down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
