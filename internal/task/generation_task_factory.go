package task

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/generation"
)

// GenerationTaskFactory creates GenerationTask instances bound to a shared
// set of dependencies. Dependencies are validated once at construction so
// CreateTask can only fail on a bad task id.
type GenerationTaskFactory struct {
	store     StateStore
	generator generation.Generator
	artifacts ArtifactPersister
	logger    *slog.Logger
}

// NewGenerationTaskFactory creates a new factory for GenerationTasks
func NewGenerationTaskFactory(
	store StateStore,
	generator generation.Generator,
	artifacts ArtifactPersister,
	logger *slog.Logger,
) (*GenerationTaskFactory, error) {
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

	return &GenerationTaskFactory{
		store:     store,
		generator: generator,
		artifacts: artifacts,
		logger:    logger.With("component", "generation_task_factory"),
	}, nil
}

// CreateTask creates a new GenerationTask for the specified task record
func (f *GenerationTaskFactory) CreateTask(taskID uuid.UUID) (Task, error) {
	task, err := NewGenerationTask(
		taskID,
		f.store,
		f.generator,
		f.artifacts,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Ensure GenerationTaskFactory implements TaskBuilder
var _ TaskBuilder = (*GenerationTaskFactory)(nil)
