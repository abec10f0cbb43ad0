package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sandboxd/internal/apperror"
	"github.com/sakif/sandboxd/internal/executor"
	"github.com/sakif/sandboxd/internal/executor/supervisor"
	"github.com/sakif/sandboxd/internal/model"
	"github.com/sakif/sandboxd/internal/repository"
)

// mockSandbox stands in for the supervisor pool.
type mockSandbox struct {
	capturedReq executor.ExecutionRequest
	returnRes   *executor.ExecutionResult
	returnErr   error
	stats       supervisor.PoolStats
}

func (m *mockSandbox) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.capturedReq = req
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.returnRes, nil
}

func (m *mockSandbox) Stats() supervisor.PoolStats {
	return m.stats
}

// mockExecutionRepo stores executions in memory, newest last.
type mockExecutionRepo struct {
	executions []model.Execution
	createErr  error
}

func (m *mockExecutionRepo) Create(_ context.Context, execution *model.Execution) error {
	if m.createErr != nil {
		return m.createErr
	}
	execution.ID = fmt.Sprintf("mock-%d", len(m.executions)+1)
	execution.CreatedAt = time.Now().UTC()
	m.executions = append(m.executions, *execution)
	return nil
}

func (m *mockExecutionRepo) GetByID(_ context.Context, id string) (*model.Execution, error) {
	for _, e := range m.executions {
		if e.ID == id {
			result := e
			return &result, nil
		}
	}
	return nil, apperror.NotFound("execution", id)
}

func (m *mockExecutionRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	result := append([]model.Execution{}, m.executions...)
	if opts.Offset >= len(result) {
		return []model.Execution{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func newTestService(sandbox *mockSandbox, repo *mockExecutionRepo) *ExecutionService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewExecutionService(sandbox, repo, logger)
}

func TestExecute_Success(t *testing.T) {
	sandbox := &mockSandbox{
		returnRes: &executor.ExecutionResult{
			Stdout:         "hi",
			Bindings:       map[string]string{"x": "5"},
			ExecutionCount: 1,
			Duration:       10 * time.Millisecond,
		},
	}
	repo := &mockExecutionRepo{}
	svc := newTestService(sandbox, repo)

	res, err := svc.Execute(context.Background(), executor.ExecutionRequest{Code: "print('hi')\nx = 5"})
	require.NoError(t, err)

	assert.Equal(t, "hi", res.Stdout)
	assert.Equal(t, "print('hi')\nx = 5", sandbox.capturedReq.Code)

	require.Len(t, repo.executions, 1)
	assert.Equal(t, model.StatusSuccess, repo.executions[0].Status)
	assert.Equal(t, int64(10), repo.executions[0].DurationMS)
}

func TestExecute_SnippetFailureRecordedAsFailure(t *testing.T) {
	sandbox := &mockSandbox{
		returnRes: &executor.ExecutionResult{
			Error: "division by zero",
			Trace: "Traceback ...",
		},
	}
	repo := &mockExecutionRepo{}
	svc := newTestService(sandbox, repo)

	res, err := svc.Execute(context.Background(), executor.ExecutionRequest{Code: "1/0"})
	require.NoError(t, err, "a snippet failure is a result, not a service error")
	assert.True(t, res.Failed())

	require.Len(t, repo.executions, 1)
	assert.Equal(t, model.StatusFailure, repo.executions[0].Status)
	assert.Equal(t, "division by zero", repo.executions[0].Error)
}

func TestExecute_InfrastructureFailureRecordedAsError(t *testing.T) {
	sandbox := &mockSandbox{returnErr: apperror.ProcessDied("worker exited")}
	repo := &mockExecutionRepo{}
	svc := newTestService(sandbox, repo)

	_, err := svc.Execute(context.Background(), executor.ExecutionRequest{Code: "pass"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrProcessDied)

	require.Len(t, repo.executions, 1)
	assert.Equal(t, model.StatusError, repo.executions[0].Status)
}

func TestExecute_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  executor.ExecutionRequest
	}{
		{"empty request", executor.ExecutionRequest{}},
		{"whitespace only", executor.ExecutionRequest{Code: "   \n\t"}},
		{"code too long", executor.ExecutionRequest{Code: strings.Repeat("a", MaxCodeLength+1)}},
		{"input too long", executor.ExecutionRequest{Input: strings.Repeat("a", MaxInputLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sandbox := &mockSandbox{}
			svc := newTestService(sandbox, &mockExecutionRepo{})

			_, err := svc.Execute(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, sandbox.capturedReq.Code, "invalid requests must never reach the sandbox")
		})
	}
}

func TestExecute_InputOnlyIsValid(t *testing.T) {
	sandbox := &mockSandbox{returnRes: &executor.ExecutionResult{Stdout: "ok"}}
	svc := newTestService(sandbox, &mockExecutionRepo{})

	_, err := svc.Execute(context.Background(), executor.ExecutionRequest{
		Input: "```python\nprint('ok')\n```",
	})
	require.NoError(t, err)
	assert.Contains(t, sandbox.capturedReq.Input, "print('ok')")
}

func TestExecute_HistoryWriteFailureDoesNotFailCall(t *testing.T) {
	sandbox := &mockSandbox{returnRes: &executor.ExecutionResult{Stdout: "ok"}}
	repo := &mockExecutionRepo{createErr: fmt.Errorf("disk full")}
	svc := newTestService(sandbox, repo)

	res, err := svc.Execute(context.Background(), executor.ExecutionRequest{Code: "pass"})
	require.NoError(t, err, "history is telemetry, not part of the execution contract")
	assert.Equal(t, "ok", res.Stdout)
}

func TestGetByID_Validation(t *testing.T) {
	svc := newTestService(&mockSandbox{}, &mockExecutionRepo{})

	_, err := svc.GetByID(context.Background(), "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestList_ClampsPagination(t *testing.T) {
	repo := &mockExecutionRepo{}
	for i := 0; i < 30; i++ {
		repo.Create(context.Background(), &model.Execution{Code: "pass", Status: model.StatusSuccess})
	}
	svc := newTestService(&mockSandbox{}, repo)

	t.Run("default limit", func(t *testing.T) {
		executions, err := svc.List(context.Background(), 0, 0)
		require.NoError(t, err)
		assert.Len(t, executions, DefaultListLimit)
	})

	t.Run("limit capped", func(t *testing.T) {
		executions, err := svc.List(context.Background(), 10000, 0)
		require.NoError(t, err)
		assert.Len(t, executions, 30, "cap is %d, only 30 rows exist", MaxListLimit)
	})

	t.Run("negative offset treated as zero", func(t *testing.T) {
		executions, err := svc.List(context.Background(), 5, -3)
		require.NoError(t, err)
		assert.Len(t, executions, 5)
	})
}

func TestStats_Passthrough(t *testing.T) {
	sandbox := &mockSandbox{stats: supervisor.PoolStats{Size: 2, ExecutionCount: 7}}
	svc := newTestService(sandbox, &mockExecutionRepo{})

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 7, stats.ExecutionCount)
}
