// Package executor defines the core contract for running untrusted Python
// snippets in an isolated environment and reporting what they did.
package executor

import (
	"context"
	"time"
)

// ExecutionRequest represents a request to execute a Python snippet.
//
// Input is optional auxiliary text: when Code is empty, the worker extracts
// the first fenced code block from Input and runs that instead. ResetModules
// asks the worker to unload modules newly imported by this call (best-effort;
// some runtime-intrinsic modules cannot be unloaded).
type ExecutionRequest struct {
	Code         string `json:"code"`
	Input        string `json:"input,omitempty"`
	ResetModules bool   `json:"resetModules,omitempty"`
}

// ExecutionResult is the outcome of one snippet execution.
//
// Exactly one of the two shapes is populated:
//   - success: Stdout/Stderr plus Bindings (the snippet's final local
//     variables, stringified)
//   - failure: Error and Trace, plus whatever output was captured before
//     the exception
//
// An evaluation failure is still a successful protocol round trip — it is
// returned as data, never as a Go error.
type ExecutionResult struct {
	Stdout   string            `json:"stdout"`
	Stderr   string            `json:"stderr"`
	Bindings map[string]string `json:"bindings,omitempty"`
	Error    string            `json:"error,omitempty"`
	Trace    string            `json:"trace,omitempty"`

	ExitCode       int           `json:"exitCode"`
	ExecutionCount int           `json:"executionCount"` // position of this call since the worker last (re)started
	Duration       time.Duration `json:"duration"`
}

// Failed reports whether the snippet raised during evaluation.
func (r *ExecutionResult) Failed() bool {
	return r.Error != ""
}

// Executor represents the core interface for running code in an isolated
// environment. Implementations are synchronous: Execute blocks for the full
// round trip.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
