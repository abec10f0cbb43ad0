// Package handler contains the HTTP handlers exposing the supervisor to the
// tool-calling layer. Handlers only parse requests and write responses; all
// rules live in the service layer.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/sandboxd/internal/executor"
	"github.com/sakif/sandboxd/internal/service"
)

// ExecuteHandler handles code execution and telemetry requests.
type ExecuteHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(svc *service.ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleExecute processes an incoming Python snippet execution request.
//
// A snippet that raises still returns 200 — the failure is data in the
// result, not an HTTP error. Only infrastructure and validation failures
// produce error statuses.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	result, err := h.svc.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleStats returns supervisor pool telemetry.
func (h *ExecuteHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// HandleHealth is the liveness endpoint. It reports the process is up; it
// deliberately does not probe workers (they start lazily and restart
// transparently, so a dead worker is not an unhealthy service).
func (h *ExecuteHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
