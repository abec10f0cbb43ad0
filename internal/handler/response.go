package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/sandboxd/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints,
// so the tool-calling layer always knows what fields to expect.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	// Retryable tells the caller whether the failure is infrastructure
	// (the next call transparently restarts the worker) or configuration
	// (fix and redeploy).
	Retryable bool `json:"retryable,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent — we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code.
//
// The service layer returns apperror kinds; this is the single place they
// are translated to HTTP. Infrastructure failures (worker died, protocol
// desync, startup failure) map to 502: the upstream sandbox broke, the
// request itself was fine, and a retry is advisable.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrStartupFailure):
			status = http.StatusBadGateway
			errorType = "startup_failure"
		case errors.Is(err, apperror.ErrProcessDied):
			status = http.StatusBadGateway
			errorType = "process_died"
		case errors.Is(err, apperror.ErrProtocol):
			status = http.StatusBadGateway
			errorType = "protocol_error"
		case errors.Is(err, apperror.ErrConfiguration):
			status = http.StatusInternalServerError
			errorType = "configuration_error"
		}

		writeJSON(w, status, ErrorResponse{
			Error:     errorType,
			Message:   appErr.Message,
			Retryable: apperror.Retryable(err),
		})
		return
	}

	// Unknown error — never expose internal details to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
