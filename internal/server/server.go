// Package server sets up the HTTP router, its middleware and the server lifecycle.
//
// WHY SEPARATE FROM main.go?
// main resolves configuration and fails fast on startup problems. Once it has
// a ready RunService, everything HTTP lives here, which keeps the router
// testable with httptest and no real listener.
//
// ROUTES:
//
//	POST /api/run     → execute submitted source, always 200
//	GET  /api/health  → liveness plus admission gate occupancy
//	GET  /metrics     → Prometheus exposition (when enabled)
//
// Anything else gets a JSON 404 or 405.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/runbroker/internal/handler"
	"github.com/sakif/runbroker/internal/metrics"
	"github.com/sakif/runbroker/internal/middleware"
)

// Config holds the HTTP-facing settings.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	MetricsEnabled  bool
}

// Addr returns the listen address, e.g. "0.0.0.0:3000".
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server owns the router. It holds no execution state of its own; the
// runner and gate are owned by main.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New wires handlers to routes.
//
// gate may be nil; health then reports zero capacity.
func New(cfg Config, runner handler.Runner, gate handler.CapacityReporter, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(runner, gate)
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
// 1. RequestID  assigns X-Request-Id (read by our Logger)
// 2. RealIP     rewrites RemoteAddr from proxy headers
// 3. Recoverer  turns a handler panic into a 500
// 4. Logger     one access log line per request
// 5. metrics    request counters by matched route
func (s *Server) setupRoutes(runner handler.Runner, gate handler.CapacityReporter) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	if s.config.MetricsEnabled {
		s.router.Use(metrics.Middleware)
	}

	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	runHandler := handler.NewRunHandler(runner, s.config.MaxBodyBytes, s.logger)
	healthHandler := handler.NewHealthHandler(gate)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/run", runHandler.HandleRun)
		r.Get("/health", healthHandler.HandleHealth)
	})

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler())
	}
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections.
//  2. Wait up to ShutdownTimeout for in-flight runs. A run never outlives its
//     own execution timeout, so the default budget is enough for all of them
//     to finish and remove their artifacts.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening on %s: %w", srv.Addr, err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
