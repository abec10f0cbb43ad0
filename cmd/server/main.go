// Package main is the entry point for the sandboxd server.
//
// main reads configuration from environment variables, builds the worker
// launcher and supervisor pool, and hands them to the server package. All
// actual logic lives in internal/.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sakif/sandboxd/internal/executor/supervisor"
	"github.com/sakif/sandboxd/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := envInt(logger, "PORT", 8080)

	// DB_PATH overrides for production deployments, e.g.
	// DB_PATH=/var/lib/sandboxd/history.db
	dbPath := envStr("DB_PATH", "data/sandboxd.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// JWT_SECRET must be a long random string. Use:
	//   JWT_SECRET=$(openssl rand -hex 32)
	// If unset, the API is open.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Warn("JWT_SECRET not set, authentication is disabled")
	}

	isolation := supervisor.IsolationConfig{
		MaxExecutions:        envInt(logger, "SANDBOX_MAX_EXECUTIONS", 100),
		ResetImportedModules: envBool("SANDBOX_RESET_MODULES", true),
		ResetSearchPath:      envBool("SANDBOX_RESET_SYS_PATH", true),
		ForceGCEvery:         envInt(logger, "SANDBOX_FORCE_GC_EVERY", 0),
	}

	launcher, err := buildLauncher(logger, isolation)
	if err != nil {
		logger.Error("failed to create worker launcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poolSize := envInt(logger, "SANDBOX_POOL_SIZE", 1)
	pool, err := supervisor.NewPool(poolSize, launcher, supervisor.Config{Isolation: isolation}, logger)
	if err != nil {
		logger.Error("failed to create supervisor pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Shutdown()

	cfg := server.Config{
		Port:      port,
		DBPath:    dbPath,
		JWTSecret: jwtSecret,
	}

	srv, err := server.New(cfg, logger, pool)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM. The deferred pool.Shutdown runs
	// after the HTTP side has drained, so no request loses its worker.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildLauncher picks the worker backend from SANDBOX_BACKEND:
// "local" (default) runs the interpreter as a child process, "docker" runs
// it in a hardened container.
func buildLauncher(logger *slog.Logger, isolation supervisor.IsolationConfig) (supervisor.Launcher, error) {
	backend := envStr("SANDBOX_BACKEND", "local")

	switch backend {
	case "docker":
		cfg := supervisor.DefaultDockerConfig()
		cfg.KeepSearchPath = !isolation.ResetSearchPath
		if image := os.Getenv("SANDBOX_IMAGE"); image != "" {
			cfg.Image = image
		}
		logger.Info("using docker worker backend", slog.String("image", cfg.Image))
		return supervisor.NewDockerLauncher(cfg, logger)

	case "local":
		cfg := supervisor.LocalConfig{
			PythonBin:      os.Getenv("SANDBOX_PYTHON"),
			KeepSearchPath: !isolation.ResetSearchPath,
		}
		logger.Info("using local worker backend")
		return supervisor.NewLocalLauncher(cfg)

	default:
		logger.Error("unknown SANDBOX_BACKEND", slog.String("value", backend))
		os.Exit(1)
		return nil, nil // unreachable
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(logger *slog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Error("invalid integer environment variable",
			slog.String("key", key),
			slog.String("value", v),
		)
		os.Exit(1)
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
