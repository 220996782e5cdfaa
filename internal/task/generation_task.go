package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/artifact"
	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/generation"
)

// failureWriteTimeout bounds the terminal failure write made from cleanup
// paths, which run detached from the (possibly cancelled) task context.
const failureWriteTimeout = 5 * time.Second

// Common errors
var (
	ErrNilStore         = errors.New("task store cannot be nil")
	ErrNilGenerator     = errors.New("generator cannot be nil")
	ErrNilArtifactStore = errors.New("artifact store cannot be nil")
	ErrNilLogger        = errors.New("logger cannot be nil")
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
)

// TaskReader is the read view of the task store the executor needs
// Version: 1.0
type TaskReader interface {
	// GetByID retrieves a task record by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// TaskTransitioner is the write view of the task store the executor needs:
// the pending-to-processing claim plus the two terminal transitions.
// Version: 1.0
type TaskTransitioner interface {
	// ClaimPending atomically moves the task from pending to processing,
	// reporting false when the task is not currently pending
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkCompleted records the terminal completed status with its result reference
	MarkCompleted(ctx context.Context, id uuid.UUID, resultRef string) error

	// MarkFailed records the terminal failed status with a non-empty reason
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// StateStore combines the store views GenerationTask depends on.
// store.TaskStore satisfies it.
type StateStore interface {
	TaskReader
	TaskTransitioner
}

// ArtifactPersister is the slice of the artifact store the executor needs.
type ArtifactPersister interface {
	// Persist fetches the image behind the locator and stores it durably
	Persist(ctx context.Context, locator string) (*artifact.Stored, error)
}

// generationTaskPayload represents the serialized data stored in the task
type generationTaskPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// GenerationTask implements the Task interface for producing an image from
// a persisted task record. Its ID is the record's ID, so duplicate dispatch
// of the same record is detected by the claim rather than by the queue.
type GenerationTask struct {
	taskID    uuid.UUID
	store     StateStore
	generator generation.Generator
	artifacts ArtifactPersister
	logger    *slog.Logger
	status    TaskStatus
}

// NewGenerationTask creates a new image generation task bound to the given
// task record.
func NewGenerationTask(
	taskID uuid.UUID,
	store StateStore,
	generator generation.Generator,
	artifacts ArtifactPersister,
	logger *slog.Logger,
) (*GenerationTask, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if generator == nil {
		return nil, ErrNilGenerator
	}
	if artifacts == nil {
		return nil, ErrNilArtifactStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if taskID == uuid.Nil {
		return nil, ErrEmptyTaskID
	}

	return &GenerationTask{
		taskID:    taskID,
		store:     store,
		generator: generator,
		artifacts: artifacts,
		logger:    logger.With("task_type", TaskTypeImageGeneration, "task_id", taskID),
		status:    TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *GenerationTask) ID() uuid.UUID {
	return t.taskID
}

// Type returns the task type identifier
func (t *GenerationTask) Type() string {
	return TaskTypeImageGeneration
}

// Payload returns the task data as a byte slice
func (t *GenerationTask) Payload() []byte {
	payload := generationTaskPayload{
		TaskID: t.taskID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// If marshal fails, return an empty payload with error logged
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}

	return data
}

// Status returns the current status of this task run
func (t *GenerationTask) Status() TaskStatus {
	return t.status
}

// Execute drives the task record through its lifecycle: claim the pending
// record, generate the image, persist the artifact, and record the terminal
// outcome. Every failure path after a successful claim writes a non-empty
// failure reason, so no fault leaves the record stuck in processing.
func (t *GenerationTask) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.status = TaskStatusFailed
			t.logger.Error("task panicked", "panic", r)
			t.recordFailure(ctx, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	t.status = TaskStatusProcessing
	t.logger.Info("starting image generation task")

	claimed, err := t.store.ClaimPending(ctx, t.taskID)
	if err != nil {
		// Nothing was claimed, so the record stays pending for a later run.
		t.status = TaskStatusFailed
		t.logger.Error("failed to claim task", "error", err)
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if !claimed {
		// Another run already claimed the record or it reached a terminal
		// status; this dispatch is a duplicate and ends as a no-op.
		t.status = TaskStatusCompleted
		t.logger.Debug("task not pending, skipping duplicate dispatch")
		return nil
	}

	record, err := t.store.GetByID(ctx, t.taskID)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to load task record", "error", err)
		t.recordFailure(ctx, "internal error: task record unavailable")
		return fmt.Errorf("failed to load task record: %w", err)
	}

	t.logger.Info("generating image", "width", record.Width, "height", record.Height)

	result, err := t.generator.Generate(ctx, generation.Request{
		Prompt: record.Prompt,
		Width:  record.Width,
		Height: record.Height,
		Style:  record.Style,
	})
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to generate image", "error", err)
		t.recordFailure(ctx, err.Error())
		return fmt.Errorf("failed to generate image: %w", err)
	}

	stored, err := t.artifacts.Persist(ctx, result.Locator)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to store generated image", "error", err)
		t.recordFailure(ctx, fmt.Sprintf("failed to store generated image: %v", err))
		return fmt.Errorf("failed to persist artifact: %w", err)
	}

	if err := t.store.MarkCompleted(ctx, t.taskID, stored.Ref); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to mark task completed", "error", err, "result_ref", stored.Ref)
		t.recordFailure(ctx, "internal error: result could not be recorded")
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("image generation task completed",
		"result_ref", stored.Ref,
		"size_bytes", stored.Size)
	return nil
}

// recordFailure writes the terminal failure reason for the claimed record.
// It detaches from the caller's context so a cancelled run can still record
// why it stopped. Failures here are logged and swallowed; the stuck-task
// sweep eventually resolves records this write could not reach.
func (t *GenerationTask) recordFailure(ctx context.Context, reason string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if err := t.store.MarkFailed(failCtx, t.taskID, reason); err != nil {
		t.logger.Error("failed to record task failure", "reason", reason, "error", err)
	}
}

// Ensure GenerationTask implements Task
var _ Task = (*GenerationTask)(nil)
