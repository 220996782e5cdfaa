package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/domain"
)

// UpdateFn mutates a task inside the store's atomic update scope. The store
// loads the current row, applies the function, validates, and writes the
// result back within one transaction, so concurrent updates on the same id
// never lose writes.
type UpdateFn func(task *domain.Task) error

// TaskFilter narrows List results. Nil fields match everything.
type TaskFilter struct {
	Status  *domain.TaskStatus
	OwnerID *uuid.UUID
}

// Page bounds a List call. Limit <= 0 falls back to the implementation
// default; Offset < 0 is treated as 0.
type Page struct {
	Limit  int
	Offset int
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// It handles domain validation internally.
	// Returns ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List retrieves tasks matching the filter, ordered by creation time
	// (ties broken by id) for stable pagination, together with the total
	// number of matching tasks independent of the page bounds.
	List(ctx context.Context, filter TaskFilter, page Page) ([]*domain.Task, int, error)

	// Update applies fn to the stored task inside one atomic read-modify-write
	// scope and returns the updated task. Concurrent-update conflicts are
	// retried internally and never surface to the caller.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFn) (*domain.Task, error)

	// ClaimPending atomically transitions the task from pending to processing.
	// It reports false without error when the task is missing, already
	// claimed, or terminal, which makes executor runs idempotent under
	// duplicate dispatch.
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkCompleted transitions a processing task to completed and records the
	// artifact reference in the same write, so no reader ever observes a
	// completed task without its result.
	// Returns ErrTaskNotFound if the task is missing or not processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, resultRef string) error

	// MarkFailed transitions a processing task to failed and records a
	// non-empty failure reason in the same write.
	// Returns ErrTaskNotFound if the task is missing or not processing.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Delete removes a task from the store.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// CountByStatus returns the number of tasks per status. Statuses with no
	// tasks are present with a zero count.
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)

	// FindStale retrieves tasks that have sat in the given status since before
	// the cutoff, ordered oldest first. Used by stuck-task recovery.
	FindStale(ctx context.Context, status domain.TaskStatus, cutoff time.Time) ([]*domain.Task, error)
}

// TxTaskStore is a TaskStore that can participate in caller-managed
// transactions. Implementations backed by a database expose it; in-memory
// implementations need not.
type TxTaskStore interface {
	TaskStore

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
