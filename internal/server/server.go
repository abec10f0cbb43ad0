// Package server wires handlers, middleware, and routes together and owns
// the HTTP listener lifecycle. It is the composition root: every dependency
// chain (db → repository → service → handler) is assembled here.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/sandboxd/internal/auth"
	"github.com/sakif/sandboxd/internal/handler"
	"github.com/sakif/sandboxd/internal/middleware"
	sqliteRepo "github.com/sakif/sandboxd/internal/repository/sqlite"
	"github.com/sakif/sandboxd/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string // empty disables authentication
}

// Server represents the HTTP server and the resources it owns. The database
// connection is closed during graceful shutdown; the sandbox pool is owned
// by main, which created it.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	sandbox service.Sandbox
}

// New creates a Server, opening the database and wiring all routes.
func New(cfg Config, logger *slog.Logger, sandbox service.Sandbox) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		sandbox: sandbox,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// Route map:
//
//	GET  /healthz              → liveness (always public)
//	POST /api/execute          → run a snippet
//	GET  /api/stats            → supervisor pool telemetry
//	GET  /api/executions       → execution history, newest first
//	GET  /api/executions/{id}  → single execution record
//
// When JWTSecret is set, everything under /api requires a bearer token.
func (s *Server) setupRoutes() error {
	// Middleware executes in registration order: request ID first so the
	// logger and recoverer can reference it.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	executionService := service.NewExecutionService(s.sandbox, s.db, s.logger)
	executeHandler := handler.NewExecuteHandler(executionService, s.logger)
	historyHandler := handler.NewHistoryHandler(executionService, s.logger)

	s.router.Get("/healthz", executeHandler.HandleHealth)

	var requireAuth func(http.Handler) http.Handler
	if s.config.JWTSecret != "" {
		tokens, err := auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		requireAuth = auth.RequireAuth(tokens)
	}

	s.router.Route("/api", func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Post("/execute", executeHandler.HandleExecute)
		r.Get("/stats", executeHandler.HandleStats)
		r.Get("/executions", historyHandler.HandleList)
		r.Get("/executions/{id}", historyHandler.HandleGetByID)
	})

	return nil
}

// Router exposes the configured router, mainly for tests that drive the
// server through httptest without binding a port.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, wait for in-flight requests, close
// the database. The sandbox pool is shut down by main after Start returns,
// so workers outlive any request still being drained.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // executions can legitimately run long
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Bool("authEnabled", s.config.JWTSecret != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
