package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/artifact"
	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/generation"
	"github.com/phrazzld/pictor-api/internal/service/auth"
	"github.com/phrazzld/pictor-api/internal/store"
	"github.com/phrazzld/pictor-api/internal/task"
)

// pingTimeout bounds the provider health check in SystemStatus.
const pingTimeout = 3 * time.Second

// rollbackTimeout bounds the record cleanup after a rejected submission.
const rollbackTimeout = 5 * time.Second

// TaskRepository defines the store surface the service layer needs.
// This is aligned with store.TaskStore to keep the separation of concerns.
type TaskRepository interface {
	// Create saves a new task to the store
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List retrieves tasks matching the filter with the total match count
	List(ctx context.Context, filter store.TaskFilter, page store.Page) ([]*domain.Task, int, error)

	// Delete removes a task from the store
	Delete(ctx context.Context, id uuid.UUID) error

	// CountByStatus returns the number of tasks per status
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
}

// TaskRunner defines the interface for submitting background tasks
type TaskRunner interface {
	// Submit adds a task to the processing queue
	Submit(ctx context.Context, task task.Task) error
}

// TaskFactory creates executable generation tasks for stored records
type TaskFactory interface {
	// CreateTask creates a new generation task bound to the given record ID
	CreateTask(taskID uuid.UUID) (task.Task, error)
}

// ArtifactStore is the artifact surface the service needs for delete
// cascades and status reporting.
type ArtifactStore interface {
	// Delete removes the artifact and any thumbnail variant
	Delete(ctx context.Context, ref string) (bool, error)

	// Stats reports the artifact count and total bytes on disk
	Stats(ctx context.Context) (*artifact.Stats, error)
}

// CreateTaskInput carries the intake parameters for a new generation task.
// Zero width or height fall back to the domain default.
type CreateTaskInput struct {
	Prompt string
	Width  int
	Height int
	Style  string
}

// ListTasksInput narrows and pages a task listing. Status and Owner are
// optional filters; non-admin principals are always scoped to their own
// tasks regardless of Owner.
type ListTasksInput struct {
	Status *domain.TaskStatus
	Owner  *uuid.UUID
	Limit  int
	Offset int
}

// SystemStatus reports the operational state returned by the status endpoint.
type SystemStatus struct {
	Timestamp time.Time                 `json:"timestamp"`
	Tasks     map[domain.TaskStatus]int `json:"tasks"`
	Storage   StorageStatus             `json:"storage"`
	Generator GeneratorStatus           `json:"generator"`
}

// StorageStatus summarizes the artifact inventory.
type StorageStatus struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// GeneratorStatus describes the configured provider and its reachability.
// Connected is only ever true after a successful health check.
type GeneratorStatus struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
}

// GeneratorInfo carries the provider identity the service reports in
// SystemStatus. It is injected at construction from configuration.
type GeneratorInfo struct {
	Provider   string
	Model      string
	Configured bool
}

// TaskService provides task lifecycle operations behind the HTTP API
type TaskService interface {
	// Create validates the input, persists a pending task owned by the
	// principal, and submits it for background generation. Returns
	// ErrValidation for bad input and ErrOverloaded when the submit queue
	// sheds the request.
	Create(ctx context.Context, principal auth.Principal, input CreateTaskInput) (*domain.Task, error)

	// Get retrieves a task by its ID. Reads are not owner-scoped: task IDs
	// are unguessable UUIDv4 values and double as capability handles.
	Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*domain.Task, error)

	// List retrieves tasks visible to the principal together with the total
	// match count. Non-admins only ever see their own tasks; admins may
	// filter freely.
	List(ctx context.Context, principal auth.Principal, input ListTasksInput) ([]*domain.Task, int, error)

	// Delete removes a task and, best effort, its stored artifact. Owners
	// may delete their own tasks; ownerless tasks are admin-only.
	Delete(ctx context.Context, principal auth.Principal, id uuid.UUID) error

	// SystemStatus reports task counts, artifact storage usage, and
	// generator reachability. Admin only.
	SystemStatus(ctx context.Context, principal auth.Principal) (*SystemStatus, error)
}

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "delete_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Known sentinel errors pass through unwrapped so the API layer's errors.Is
// mapping stays direct.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	// Check for service-defined sentinel errors
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOverloaded) ||
		errors.Is(err, ErrPermissionDenied) {
		return err
	}

	// Check for store-level sentinel errors that should be mapped to service-level ones
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrNotFound
	}

	// If not a sentinel to be returned directly, wrap it
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// newValidationError tags an intake violation with the ErrValidation sentinel
// while keeping the specific violation in the chain for the response body.
func newValidationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskRepo  TaskRepository
	runner    TaskRunner
	factory   TaskFactory
	artifacts ArtifactStore
	generator generation.Generator
	info      GeneratorInfo
	logger    *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskRepo TaskRepository,
	runner TaskRunner,
	factory TaskFactory,
	artifacts ArtifactStore,
	generator generation.Generator,
	info GeneratorInfo,
	logger *slog.Logger,
) (TaskService, error) {
	// Validate dependencies
	if taskRepo == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskRepo cannot be nil",
			Err:       nil,
		}
	}
	if runner == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "runner cannot be nil",
			Err:       nil,
		}
	}
	if factory == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "factory cannot be nil",
			Err:       nil,
		}
	}
	if artifacts == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "artifacts cannot be nil",
			Err:       nil,
		}
	}
	if generator == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "generator cannot be nil",
			Err:       nil,
		}
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskRepo:  taskRepo,
		runner:    runner,
		factory:   factory,
		artifacts: artifacts,
		generator: generator,
		info:      info,
		logger:    logger.With("component", "task_service"),
	}, nil
}

// Create persists a new pending task and submits it for background
// generation. A rejected submission deletes the fresh record so shed
// requests leave no orphan pending row behind.
func (s *taskServiceImpl) Create(
	ctx context.Context,
	principal auth.Principal,
	input CreateTaskInput,
) (*domain.Task, error) {
	// API-key principals authenticate without a user identity (ID is the nil
	// UUID); tasks they create stay ownerless like anonymous ones.
	ownerID := uuid.NullUUID{}
	if principal.Authenticated && principal.ID != uuid.Nil {
		ownerID = uuid.NullUUID{UUID: principal.ID, Valid: true}
	}

	// 1. Build and validate the task record
	newTask, err := domain.NewTask(ownerID, input.Prompt, input.Width, input.Height, input.Style)
	if err != nil {
		s.logger.Debug("task intake validation failed",
			"error", err,
			"requester_id", principal.ID)
		return nil, newValidationError(err)
	}

	// 2. Save it with pending status
	if err := s.taskRepo.Create(ctx, newTask); err != nil {
		s.logger.Error("failed to save task",
			"error", err,
			"task_id", newTask.ID)
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}

	// 3. Build the executable generation task for the record
	bgTask, err := s.factory.CreateTask(newTask.ID)
	if err != nil {
		s.logger.Error("failed to build generation task",
			"error", err,
			"task_id", newTask.ID)
		s.rollbackCreate(ctx, newTask.ID)
		return nil, NewTaskServiceError("create_task", "failed to build generation task", err)
	}

	// 4. Submit it to the background runner
	if err := s.runner.Submit(ctx, bgTask); err != nil {
		s.rollbackCreate(ctx, newTask.ID)

		if errors.Is(err, task.ErrQueueFull) {
			s.logger.Warn("submit queue full, shedding task",
				"task_id", newTask.ID)
			return nil, ErrOverloaded
		}

		s.logger.Error("failed to submit generation task",
			"error", err,
			"task_id", newTask.ID)
		return nil, NewTaskServiceError("create_task", "failed to submit generation task", err)
	}

	s.logger.Info("task created and queued",
		"task_id", newTask.ID,
		"owner_id", newTask.OwnerID.UUID,
		"width", newTask.Width,
		"height", newTask.Height)

	return newTask, nil
}

// rollbackCreate removes a task record whose submission was rejected. Runs
// on a detached context because the caller's may already be cancelled; any
// leftover pending row is requeued by stuck-task recovery instead.
func (s *taskServiceImpl) rollbackCreate(ctx context.Context, id uuid.UUID) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := s.taskRepo.Delete(deleteCtx, id); err != nil &&
		!errors.Is(err, store.ErrTaskNotFound) {
		s.logger.Warn("failed to delete task after rejected submission",
			"error", err,
			"task_id", id)
	}
}

// Get retrieves a task by its ID.
func (s *taskServiceImpl) Get(
	ctx context.Context,
	principal auth.Principal,
	id uuid.UUID,
) (*domain.Task, error) {
	retrieved, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error("failed to retrieve task",
			"error", err,
			"task_id", id)
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}

	s.logger.Debug("retrieved task",
		"task_id", id,
		"status", retrieved.Status,
		"requester_role", principal.Role)

	return retrieved, nil
}

// List retrieves tasks visible to the principal with the total match count.
func (s *taskServiceImpl) List(
	ctx context.Context,
	principal auth.Principal,
	input ListTasksInput,
) ([]*domain.Task, int, error) {
	// Listing requires an identity to scope by
	if !principal.Authenticated {
		return nil, 0, ErrPermissionDenied
	}

	if input.Status != nil {
		if _, err := domain.ParseTaskStatus(string(*input.Status)); err != nil {
			return nil, 0, newValidationError(err)
		}
	}

	filter := store.TaskFilter{Status: input.Status}
	if principal.IsAdmin() {
		filter.OwnerID = input.Owner
	} else {
		// Non-admins only ever see their own tasks
		ownerID := principal.ID
		filter.OwnerID = &ownerID
	}

	page := store.Page{Limit: input.Limit, Offset: input.Offset}
	tasks, total, err := s.taskRepo.List(ctx, filter, page)
	if err != nil {
		s.logger.Error("failed to list tasks",
			"error", err,
			"requester_id", principal.ID)
		return nil, 0, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}

	s.logger.Debug("listed tasks",
		"requester_id", principal.ID,
		"returned", len(tasks),
		"total", total)

	return tasks, total, nil
}

// Delete removes a task and, best effort, its stored artifact.
func (s *taskServiceImpl) Delete(
	ctx context.Context,
	principal auth.Principal,
	id uuid.UUID,
) error {
	retrieved, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return ErrNotFound
		}
		s.logger.Error("failed to retrieve task for delete",
			"error", err,
			"task_id", id)
		return NewTaskServiceError("delete_task", "failed to retrieve task", err)
	}

	if !canDelete(principal, retrieved) {
		s.logger.Warn("task delete denied",
			"task_id", id,
			"requester_id", principal.ID,
			"requester_role", principal.Role)
		return ErrPermissionDenied
	}

	if err := s.taskRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return ErrNotFound
		}
		s.logger.Error("failed to delete task",
			"error", err,
			"task_id", id)
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	// The record is the source of truth; the artifact cascade is best effort
	// and an orphaned file only costs disk space.
	if retrieved.ResultRef != "" {
		if _, err := s.artifacts.Delete(ctx, retrieved.ResultRef); err != nil {
			s.logger.Warn("failed to delete task artifact",
				"error", err,
				"task_id", id,
				"result_ref", retrieved.ResultRef)
		}
	}

	s.logger.Info("task deleted",
		"task_id", id,
		"requester_id", principal.ID)

	return nil
}

// canDelete encodes the delete policy: owners delete their own tasks, admins
// delete anything, and ownerless tasks are admin-only.
func canDelete(principal auth.Principal, t *domain.Task) bool {
	if principal.IsAdmin() {
		return true
	}
	if !principal.Authenticated {
		return false
	}
	return t.OwnerID.Valid && t.OwnerID.UUID == principal.ID
}

// SystemStatus reports task counts, artifact storage usage, and generator
// reachability for operators.
func (s *taskServiceImpl) SystemStatus(
	ctx context.Context,
	principal auth.Principal,
) (*SystemStatus, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	counts, err := s.taskRepo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("failed to count tasks by status", "error", err)
		return nil, NewTaskServiceError("system_status", "failed to count tasks", err)
	}

	stats, err := s.artifacts.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to read artifact stats", "error", err)
		return nil, NewTaskServiceError("system_status", "failed to read artifact stats", err)
	}

	return &SystemStatus{
		Timestamp: time.Now().UTC(),
		Tasks:     counts,
		Storage: StorageStatus{
			Count:      stats.Count,
			TotalBytes: stats.TotalBytes,
		},
		Generator: GeneratorStatus{
			Provider:   s.info.Provider,
			Model:      s.info.Model,
			Configured: s.info.Configured,
			Connected:  s.checkGenerator(ctx),
		},
	}, nil
}

// checkGenerator pings the provider when the generator exposes a health
// check. Reports false for generators without one.
func (s *taskServiceImpl) checkGenerator(ctx context.Context) bool {
	checker, ok := s.generator.(generation.HealthChecker)
	if !ok {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := checker.Ping(pingCtx); err != nil {
		s.logger.Warn("generator ping failed", "error", err)
		return false
	}
	return true
}
