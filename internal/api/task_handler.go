package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
	"github.com/phrazzld/pictor-api/internal/redact"
	"github.com/phrazzld/pictor-api/internal/service"
)

// Pagination bounds for task listings.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// retryAfterSeconds is the backoff hint sent with 503 responses when the
// submission queue sheds a task.
const retryAfterSeconds = "5"

// CreateTaskRequest represents the request body for creating a generation task.
// Width, height and style are optional; zero dimensions fall back to the
// server default.
type CreateTaskRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Style  string `json:"style,omitempty"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Prompt        string    `json:"prompt"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Style         string    `json:"style,omitempty"`
	Status        string    `json:"status"`
	ResultURL     string    `json:"result_url,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListTasksResponse wraps a page of tasks with the effective paging values.
type ListTasksResponse struct {
	Items  []TaskResponse `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks requests. Accepted tasks are generated
// in the background, so the response is 202 with the pending record.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	principal := principalFromRequest(r)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.Validate.Struct(req); err != nil {
		log.Warn("validation error", slog.String("error", redact.Error(err)))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	created, err := h.taskService.Create(r.Context(), principal, service.CreateTaskInput{
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
		Style:  req.Style,
	})
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		if errors.Is(err, service.ErrOverloaded) {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		shared.RespondWithErrorAndLog(w, r, statusCode, GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("task accepted",
		slog.String("task_id", created.ID.String()),
		slog.String("status", string(created.Status)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(created))
}

// GetTask handles GET /api/tasks/{id} requests. Task IDs are unguessable, so
// reads need no credentials; polling clients hit this until the task reaches
// a terminal status.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	principal := principalFromRequest(r)

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		log.Warn("invalid task id", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	retrieved, err := h.taskService.Get(r.Context(), principal, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(retrieved))
}

// ListTasks handles GET /api/tasks requests with optional status, owner and
// paging query parameters. The response echoes the effective limit and
// offset.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	principal := principalFromRequest(r)
	query := r.URL.Query()

	input := service.ListTasksInput{
		Limit:  defaultListLimit,
		Offset: 0,
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			log.Warn("invalid limit parameter", slog.String("value", raw))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Limit must be a non-negative integer")
			return
		}
		input.Limit = normalizeLimit(limit)
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			log.Warn("invalid offset parameter", slog.String("value", raw))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Offset must be a non-negative integer")
			return
		}
		input.Offset = offset
	}

	if raw := query.Get("status"); raw != "" {
		// The service validates the value and answers with a validation error
		status := domain.TaskStatus(raw)
		input.Status = &status
	}

	if raw := query.Get("owner"); raw != "" {
		owner, err := uuid.Parse(raw)
		if err != nil {
			log.Warn("invalid owner parameter", slog.String("value", raw))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Owner has invalid format")
			return
		}
		input.Owner = &owner
	}

	tasks, total, err := h.taskService.List(r.Context(), principal, input)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	items := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskToResponse(t))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{
		Items:  items,
		Total:  total,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	principal := principalFromRequest(r)

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		log.Warn("invalid task id", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	if err := h.taskService.Delete(r.Context(), principal, taskID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("task deleted", slog.String("task_id", taskID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// normalizeLimit maps a zero limit to the default page size and clamps
// oversized limits.
func normalizeLimit(limit int) int {
	switch {
	case limit == 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// taskToResponse converts a domain.Task to a TaskResponse. Completed tasks
// expose their artifact through the serving route rather than the raw
// reference.
func taskToResponse(t *domain.Task) TaskResponse {
	response := TaskResponse{
		ID:            t.ID.String(),
		Prompt:        t.Prompt,
		Width:         t.Width,
		Height:        t.Height,
		Style:         t.Style,
		Status:        string(t.Status),
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}

	if t.OwnerID.Valid {
		response.OwnerID = t.OwnerID.UUID.String()
	}
	if t.ResultRef != "" {
		response.ResultURL = "/api/images/" + t.ResultRef
	}

	return response
}
