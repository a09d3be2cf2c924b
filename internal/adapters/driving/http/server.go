package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/custodia-labs/xpost/internal/core/ports/driving"
	"github.com/custodia-labs/xpost/internal/metrics"
)

// DefaultMaxUploadBytes bounds the compose form, image included.
const DefaultMaxUploadBytes = 8 << 20

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Services
	authorization driving.AuthorizationService
	operatorAuth  driven.AuthAdapter // nil disables operator auth

	// Uploads
	uploadDir      string
	maxUploadBytes int64

	// Infrastructure health checks, by name
	checks map[string]driven.Pinger
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	UploadDir      string
	MaxUploadBytes int64
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           5000,
		Version:        "dev",
		UploadDir:      "uploads",
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authorization driving.AuthorizationService,
	operatorAuth driven.AuthAdapter, // can be nil
	checks map[string]driven.Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	s := &Server{
		router:         http.NewServeMux(),
		version:        cfg.Version,
		logger:         logger,
		metrics:        cfg.Metrics,
		authorization:  authorization,
		operatorAuth:   operatorAuth,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: maxUpload,
		checks:         checks,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	operator := NewOperatorMiddleware(s.operatorAuth)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.Handle("GET /metrics", s.metrics.Handler())
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwagger)

	// Compose form and provider redirect (local, cookie-less)
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /{$}", s.handleCompose)
	s.router.HandleFunc("GET /oauth/callback", s.handleCallback)

	// JSON API
	s.router.Handle("POST /api/v1/posts",
		operator.Authenticate(http.HandlerFunc(s.handleCreatePost)))
	s.router.Handle("POST /api/v1/oauth/authorize",
		operator.Authenticate(http.HandlerFunc(s.handleAuthorize)))
	s.router.Handle("GET /api/v1/oauth/status",
		operator.Authenticate(http.HandlerFunc(s.handleStatus)))
	s.router.Handle("DELETE /api/v1/oauth/token",
		operator.Authenticate(http.HandlerFunc(s.handleSignOut)))
}

// Handler returns the router wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewMetricsMiddleware(s.metrics).Handler(h)
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	return h
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
