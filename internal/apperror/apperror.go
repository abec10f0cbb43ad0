package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")

	// Supervisor failure kinds. The first three are infrastructure failures:
	// the in-flight call is lost, but the next call transparently restarts
	// the worker, so callers may retry. ErrConfiguration is not retryable.
	ErrStartupFailure = errors.New("worker startup failed")
	ErrProcessDied    = errors.New("worker process died")
	ErrProtocol       = errors.New("protocol violation")
	ErrConfiguration  = errors.New("invalid configuration")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// StartupFailed reports a worker that never completed its READY handshake.
// The start attempt is abandoned; the next call may try again.
func StartupFailed(message string) *AppError {
	return &AppError{
		Err:     ErrStartupFailure,
		Message: message,
	}
}

// ProcessDied reports a broken pipe, an unexpected EOF, or a worker whose
// process has exited.
func ProcessDied(message string) *AppError {
	return &AppError{
		Err:     ErrProcessDied,
		Message: message,
	}
}

// ProtocolViolation reports a response line that could not be parsed into
// the expected record shape. Synchronization with the worker is assumed
// lost, so callers treat this exactly like a dead process.
func ProtocolViolation(message string) *AppError {
	return &AppError{
		Err:     ErrProtocol,
		Message: message,
	}
}

// InvalidConfiguration reports missing or unusable worker-launch
// configuration (no interpreter binary, no image, bad limits).
// Not retried automatically: fix the deployment and restart.
func InvalidConfiguration(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}

// Retryable reports whether err is an infrastructure failure that a later
// call can reasonably expect to recover from (the supervisor restarts the
// worker on its next execute). Configuration and validation errors are not
// retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrStartupFailure) ||
		errors.Is(err, ErrProcessDied) ||
		errors.Is(err, ErrProtocol)
}
