package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
	"github.com/phrazzld/pictor-api/internal/store"
)

// updateConflictRetries bounds how often an atomic update is retried when it
// loses a serialization race. Conflicts are an internal concern of the store
// and never surface to callers.
const updateConflictRetries = 3

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements the transactional store interface
var _ store.TxTaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new store instance bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// taskColumns is the canonical select list shared by every read path.
const taskColumns = `id, owner_id, prompt, width, height, style, status, result_ref, failure_reason, created_at, updated_at`

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status string

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Prompt,
		&task.Width,
		&task.Height,
		&task.Style,
		&status,
		&task.ResultRef,
		&task.FailureReason,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	return &task, nil
}

// Create implements store.TaskStore.Create
// It saves a new task to the database, handling domain validation.
// Returns store.ErrDuplicate if a task with the same ID already exists.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during creation",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, owner_id, prompt, width, height, style, status, result_ref, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Prompt,
		task.Width,
		task.Height,
		task.Style,
		task.Status,
		task.ResultRef,
		task.FailureReason,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Debug("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// It retrieves a task by its unique ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	return task, nil
}

// List implements store.TaskStore.List
// It returns tasks matching the filter ordered by creation time (ties broken
// by id) plus the total number of matching tasks independent of the page.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
	page store.Page,
) ([]*domain.Task, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	// Total first, over the same filter, so the count is independent of the
	// page slice.
	var total int
	countQuery := `SELECT COUNT(*) FROM tasks` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM tasks%s ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d`,
		taskColumns, where, len(args)-1, len(args),
	)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, 0, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, total, nil
}

// Update implements store.TaskStore.Update
// It applies fn to the task inside one transaction holding a row lock, so
// concurrent updates on the same id serialize instead of losing writes.
// Serialization conflicts are retried internally.
func (s *PostgresTaskStore) Update(
	ctx context.Context,
	id uuid.UUID,
	fn store.UpdateFn,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	var lastErr error

	for attempt := 0; attempt < updateConflictRetries; attempt++ {
		updated, lastErr = s.updateOnce(ctx, id, fn)
		if lastErr == nil || !IsSerializationFailure(lastErr) {
			return updated, lastErr
		}

		log.Debug("retrying task update after conflict",
			slog.String("task_id", id.String()),
			slog.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}

	log.Error("task update exhausted conflict retries",
		slog.String("task_id", id.String()),
		slog.String("error", lastErr.Error()))
	return nil, store.NewStoreError("task", "update", "conflict retries exhausted", lastErr)
}

// updateOnce performs one read-modify-write pass. When the store is backed by
// a *sql.DB it opens its own transaction; when already inside a caller
// transaction (via WithTx) it reuses it.
func (s *PostgresTaskStore) updateOnce(
	ctx context.Context,
	id uuid.UUID,
	fn store.UpdateFn,
) (*domain.Task, error) {
	if db, ok := s.db.(*sql.DB); ok {
		var task *domain.Task
		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			var txErr error
			task, txErr = applyTaskUpdate(ctx, tx, id, fn)
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return task, nil
	}

	return applyTaskUpdate(ctx, s.db, id, fn)
}

// applyTaskUpdate loads the row under FOR UPDATE, applies fn, validates the
// result, and writes every mutable column back in one statement.
func applyTaskUpdate(
	ctx context.Context,
	db store.DBTX,
	id uuid.UUID,
	fn store.UpdateFn,
) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`

	task, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	if err := fn(task); err != nil {
		return nil, err
	}

	task.UpdatedAt = time.Now().UTC()
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	updateQuery := `
		UPDATE tasks
		SET owner_id = $1, prompt = $2, width = $3, height = $4, style = $5,
		    status = $6, result_ref = $7, failure_reason = $8, updated_at = $9
		WHERE id = $10
	`
	result, err := db.ExecContext(ctx, updateQuery,
		task.OwnerID,
		task.Prompt,
		task.Width,
		task.Height,
		task.Style,
		task.Status,
		task.ResultRef,
		task.FailureReason,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return nil, MapError(err)
	}
	if err := CheckRowsAffected(result, "task"); err != nil {
		return nil, store.ErrTaskNotFound
	}

	return task, nil
}

// ClaimPending implements store.TaskStore.ClaimPending
// The status guard in the WHERE clause makes the pending -> processing
// transition a compare-and-set: of N concurrent claims exactly one updates a
// row, the rest see zero rows affected and report false.
func (s *PostgresTaskStore) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusProcessing,
		time.Now().UTC(),
		id,
		domain.TaskStatusPending,
	)
	if err != nil {
		log.Error("failed to claim task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		log.Debug("task not claimable",
			slog.String("task_id", id.String()))
		return false, nil
	}

	return true, nil
}

// MarkCompleted implements store.TaskStore.MarkCompleted
// Status and result reference land in the same statement, guarded by
// status='processing', so no reader observes a completed task without its
// result and terminal rows stay immutable.
func (s *PostgresTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, resultRef string) error {
	if resultRef == "" {
		return fmt.Errorf("%w: completed task requires a result reference", store.ErrInvalidEntity)
	}
	return s.finishTask(ctx, id, domain.TaskStatusCompleted, resultRef, "")
}

// MarkFailed implements store.TaskStore.MarkFailed
// Status and failure reason land in the same statement, guarded by
// status='processing'.
func (s *PostgresTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: failed task requires a failure reason", store.ErrInvalidEntity)
	}
	return s.finishTask(ctx, id, domain.TaskStatusFailed, "", reason)
}

// finishTask writes a terminal transition in one atomic statement.
func (s *PostgresTaskStore) finishTask(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	resultRef, reason string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, result_ref = $2, failure_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		resultRef,
		reason,
		time.Now().UTC(),
		id,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		log.Error("failed to finish task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		log.Warn("no processing task to finish",
			slog.String("task_id", id.String()),
			slog.String("status", string(status)))
		return store.ErrTaskNotFound
	}

	log.Info("task finished",
		slog.String("task_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// Delete implements store.TaskStore.Delete
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		log.Debug("task not found for deletion", slog.String("task_id", id.String()))
		return store.ErrTaskNotFound
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	return nil
}

// CountByStatus implements store.TaskStore.CountByStatus
// Statuses without tasks are present in the result with a zero count.
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	counts := map[domain.TaskStatus]int{
		domain.TaskStatusPending:    0,
		domain.TaskStatusProcessing: 0,
		domain.TaskStatusCompleted:  0,
		domain.TaskStatusFailed:     0,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		log.Error("failed to count tasks by status", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[domain.TaskStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// FindStale implements store.TaskStore.FindStale
// It returns tasks sitting in the given status since before the cutoff,
// oldest first. Stuck-task recovery uses this to re-dispatch pending tasks
// and fail abandoned processing tasks after a restart.
func (s *PostgresTaskStore) FindStale(
	ctx context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 AND updated_at < $2 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, string(status), cutoff)
	if err != nil {
		log.Error("failed to query stale tasks",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, fmt.Errorf("failed to query stale tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale task rows: %w", err)
	}

	return tasks, nil
}
