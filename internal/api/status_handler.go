package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/service"
)

// StatusHandler reports operational health for administrators.
type StatusHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(taskService service.TaskService, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StatusHandler")
	}

	return &StatusHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "status_handler")),
	}
}

// GetSystemStatus handles GET /api/status requests. The routing guard already
// requires an admin; the service enforces the same policy itself.
func (h *StatusHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	principal := principalFromRequest(r)

	status, err := h.taskService.SystemStatus(r.Context(), principal)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// HealthCheck handles GET /health requests with a plain-text liveness answer.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Debug("failed to write health response", "error", err)
	}
}
