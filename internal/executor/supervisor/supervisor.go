// Package supervisor manages the lifecycle of long-lived sandboxed Python
// workers: spawning, the line-oriented request/response protocol, periodic
// restarts per the isolation policy, and transparent recovery when a worker
// crashes or desynchronizes.
//
// Keeping one process alive across calls makes execution fast, but a naive
// persistent interpreter accumulates leaked state. The worker loop gives
// local-variable isolation for free (fresh namespace per call) and explicitly
// restores the interpreter-global state a snippet can still mutate; the
// supervisor's restart policy is the isolation backstop of last resort.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/sakif/sandboxd/internal/apperror"
	"github.com/sakif/sandboxd/internal/executor"
)

// ErrShutdown is returned by Execute after Shutdown has been called.
// Shutdown is terminal: a shut-down supervisor never restarts its worker.
var ErrShutdown = errors.New("supervisor: already shut down")

const (
	defaultStartupTimeout = 10 * time.Second
	defaultShutdownGrace  = 5 * time.Second
)

// Config holds the supervisor's construction-time settings.
type Config struct {
	// Isolation is the per-call reset and restart policy.
	Isolation IsolationConfig
	// StartupTimeout bounds the wait for the READY sentinel.
	StartupTimeout time.Duration
	// ShutdownGrace bounds the wait for a clean worker exit before killing.
	ShutdownGrace time.Duration
}

// Stats is read-only supervisor telemetry.
type Stats struct {
	ExecutionCount int  `json:"executionCount"` // calls since the worker last (re)started
	RestartCount   int  `json:"restartCount"`
	ProcessAlive   bool `json:"processAlive"`
}

// Supervisor owns exactly one worker process at a time and serializes all
// access to it. Calls are exclusive end to end: a second caller's request is
// only sent after the first caller's response has been fully read. Callers
// needing parallelism run multiple Supervisors (see Pool).
type Supervisor struct {
	launcher Launcher
	config   Config
	logger   *slog.Logger

	mu             sync.Mutex
	worker         *worker // nil while unstarted
	closed         bool
	everStarted    bool
	executionCount int
	restartCount   int
}

// New creates a Supervisor. The worker is started lazily on the first
// Execute, so construction is cheap even for the Ephemeral tier.
func New(launcher Launcher, cfg Config, logger *slog.Logger) (*Supervisor, error) {
	if launcher == nil {
		return nil, apperror.InvalidConfiguration("supervisor requires a launcher")
	}
	if err := cfg.Isolation.Validate(); err != nil {
		return nil, err
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	return &Supervisor{
		launcher: launcher,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Execute runs one snippet and returns its outcome.
//
// An exception raised by the snippet is a normal result (ExecutionResult
// with Error/Trace set), never a Go error. Go errors are infrastructure:
// startup failures, a dead worker, protocol desynchronization. A lost
// in-flight call is never retried automatically — retrying a side-effecting
// snippet is worse than losing one call — but the next Execute transparently
// restarts the worker.
func (s *Supervisor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShutdown
	}

	// Periodic restart decided by the previous call's count.
	if s.worker != nil && s.config.Isolation.ShouldRestart(s.executionCount) {
		s.logger.Info("restarting worker per isolation policy",
			slog.Int("executions", s.executionCount),
			slog.String("worker", s.worker.id()),
		)
		s.worker.close(s.config.ShutdownGrace)
		s.worker = nil
	}

	// Cheap liveness probe; an externally killed worker is replaced here.
	if s.worker != nil && !s.worker.alive() {
		s.logger.Warn("worker process died, restarting",
			slog.String("worker", s.worker.id()),
		)
		s.worker.close(0)
		s.worker = nil
	}

	if s.worker == nil {
		if err := s.startLocked(ctx); err != nil {
			return nil, err
		}
	}

	s.executionCount++

	if s.config.Isolation.ShouldForceGC(s.executionCount) {
		runtime.GC()
	}

	requestLine, err := encodeRequest(wireRequest{
		Code:  req.Code,
		Input: req.Input,
		// The config sets the floor; a caller may ask for stricter hygiene
		// on a single call but never weaker.
		ResetModules: req.ResetModules || s.config.Isolation.ResetImportedModules,
	})
	if err != nil {
		return nil, apperror.ValidationFailed("code", err.Error())
	}

	responseLine, err := s.worker.roundTrip(ctx, requestLine)
	if err != nil {
		s.worker.close(0)
		s.worker = nil
		return nil, err
	}

	resp, err := decodeResponse(responseLine)
	if err != nil {
		// Loss of synchronization is unrecoverable without a restart.
		s.logger.Error("unparseable worker response",
			slog.String("worker", s.worker.id()),
			slog.String("error", err.Error()),
		)
		s.worker.close(0)
		s.worker = nil
		return nil, apperror.ProtocolViolation(err.Error())
	}

	return &executor.ExecutionResult{
		Stdout:         resp.stdout(),
		Stderr:         resp.Stderr,
		Bindings:       resp.Bindings,
		Error:          resp.Error,
		Trace:          resp.Trace,
		ExitCode:       0,
		ExecutionCount: s.executionCount,
		Duration:       time.Since(start),
	}, nil
}

// startLocked spawns a worker and completes the READY handshake. Callers
// hold s.mu. On failure the supervisor stays unstarted so the next call can
// retry.
func (s *Supervisor) startLocked(ctx context.Context) error {
	w, err := startWorker(ctx, s.launcher, s.config.StartupTimeout)
	if err != nil {
		s.logger.Error("worker startup failed", slog.String("error", err.Error()))
		return err
	}

	if s.everStarted {
		s.restartCount++
	}
	s.everStarted = true
	s.worker = w
	s.executionCount = 0

	s.logger.Info("worker started",
		slog.String("worker", w.id()),
		slog.Int("restarts", s.restartCount),
	)
	return nil
}

// Stats returns current telemetry. Safe to call concurrently with Execute;
// it waits for any in-flight call.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ExecutionCount: s.executionCount,
		RestartCount:   s.restartCount,
		ProcessAlive:   s.worker != nil && s.worker.alive(),
	}
}

// Shutdown terminates the worker: close the write side of the pipe, wait up
// to the configured grace for a clean exit, kill otherwise. Idempotent, and
// terminal — subsequent Execute calls return ErrShutdown.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.worker != nil {
		s.logger.Info("shutting down worker", slog.String("worker", s.worker.id()))
		s.worker.close(s.config.ShutdownGrace)
		s.worker = nil
	}
}
