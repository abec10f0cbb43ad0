// Package service contains the business logic layer: validation, snippet
// execution orchestration, and history recording. It knows nothing about
// HTTP — handlers translate its domain errors to status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/sandboxd/internal/apperror"
	"github.com/sakif/sandboxd/internal/executor"
	"github.com/sakif/sandboxd/internal/executor/supervisor"
	"github.com/sakif/sandboxd/internal/model"
	"github.com/sakif/sandboxd/internal/repository"
)

// Validation constants.
const (
	MaxCodeLength    = 100000 // ~100KB of code
	MaxInputLength   = 100000
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Sandbox is the slice of the supervisor pool the service needs. Defined
// here so tests can substitute a mock without touching real workers.
type Sandbox interface {
	Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error)
	Stats() supervisor.PoolStats
}

// ExecutionService validates requests, runs them on the sandbox, and records
// every attempt in the history repository.
type ExecutionService struct {
	sandbox Sandbox
	repo    repository.ExecutionRepository
	logger  *slog.Logger
}

func NewExecutionService(sandbox Sandbox, repo repository.ExecutionRepository, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		sandbox: sandbox,
		repo:    repo,
		logger:  logger,
	}
}

// Execute runs one snippet. A snippet that raises is a normal result; only
// infrastructure failures (dead worker, protocol desync, bad configuration)
// come back as errors. Every attempt, including failed infrastructure, is
// recorded in the history table.
func (s *ExecutionService) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if strings.TrimSpace(req.Code) == "" && strings.TrimSpace(req.Input) == "" {
		return nil, apperror.ValidationFailed("code", "code or input is required")
	}
	if len(req.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if len(req.Input) > MaxInputLength {
		return nil, apperror.ValidationFailed("input",
			fmt.Sprintf("input must be %d characters or less", MaxInputLength))
	}

	result, err := s.sandbox.Execute(ctx, req)
	if err != nil {
		s.logger.Error("execution failed",
			slog.String("error", err.Error()),
			slog.Bool("retryable", apperror.Retryable(err)),
		)
		s.record(ctx, &model.Execution{
			Code:   req.Code,
			Status: model.StatusError,
			Error:  err.Error(),
		})
		return nil, err
	}

	record := &model.Execution{
		Code:           req.Code,
		Status:         model.StatusSuccess,
		Stdout:         result.Stdout,
		Stderr:         result.Stderr,
		ExecutionCount: result.ExecutionCount,
		DurationMS:     result.Duration.Milliseconds(),
	}
	if result.Failed() {
		record.Status = model.StatusFailure
		record.Error = result.Error
	}
	s.record(ctx, record)

	return result, nil
}

// record persists one history row. History is telemetry: a write failure is
// logged but never fails the execution it describes.
func (s *ExecutionService) record(ctx context.Context, execution *model.Execution) {
	if err := s.repo.Create(ctx, execution); err != nil {
		s.logger.Error("failed to record execution",
			slog.String("status", execution.Status),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("execution recorded",
		slog.String("id", execution.ID),
		slog.String("status", execution.Status),
		slog.Int64("durationMs", execution.DurationMS),
	)
}

// GetByID retrieves one execution record.
// Returns apperror.ErrNotFound if it doesn't exist.
func (s *ExecutionService) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "execution ID is required")
	}

	return s.repo.GetByID(ctx, id)
}

// List retrieves execution records with pagination, newest first.
func (s *ExecutionService) List(ctx context.Context, limit, offset int) ([]model.Execution, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	executions, err := s.repo.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list executions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	return executions, nil
}

// Stats returns sandbox pool telemetry.
func (s *ExecutionService) Stats() supervisor.PoolStats {
	return s.sandbox.Stats()
}
