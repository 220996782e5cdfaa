package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/domain"
)

// stuckTaskReason is the failure reason recorded for records stranded in
// processing past the stuck-task age, e.g. by a crash mid-generation.
const stuckTaskReason = "interrupted: processing did not complete"

// RecoveryStore is the store view the runner's recovery sweep needs
// Version: 1.0
type RecoveryStore interface {
	// FindStale retrieves tasks sitting in the given status since before the cutoff
	FindStale(ctx context.Context, status domain.TaskStatus, cutoff time.Time) ([]*domain.Task, error)

	// MarkFailed records the terminal failed status with a non-empty reason
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can sit in a non-terminal state
	// before the recovery sweep picks it up
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to run the recovery sweep
	// If zero, defaults to 1 minute
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            4,
		QueueSize:              10,
		StuckTaskAge:           10 * time.Minute,
		StuckTaskCheckInterval: time.Minute,
	}
}

// TaskRunner owns the dispatch pipeline: the bounded submit queue, the
// worker pool draining it, and the recovery sweep that rescues records
// stranded by a crash or restart. Submit never blocks; saturation surfaces
// as ErrQueueFull so callers can shed load instead of queueing unbounded.
type TaskRunner struct {
	store      RecoveryStore
	builder    TaskBuilder
	queue      *TaskQueue
	pool       *WorkerPool
	config     TaskRunnerConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	store RecoveryStore,
	builder TaskBuilder,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	if config.WorkerCount < 1 {
		config.WorkerCount = DefaultTaskRunnerConfig().WorkerCount
	}
	if config.QueueSize < 1 {
		config.QueueSize = DefaultTaskRunnerConfig().QueueSize
	}
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = DefaultTaskRunnerConfig().StuckTaskAge
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	return &TaskRunner{
		store:      store,
		builder:    builder,
		queue:      queue,
		pool:       pool,
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// SetErrorHandler allows setting a custom error handler for failed task runs
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Submit hands a task to the queue and returns immediately. A saturated
// queue surfaces ErrQueueFull; the caller decides whether to shed or retry.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit cancelled: %w", err)
	}

	return r.queue.Enqueue(task)
}

// Start runs an initial recovery sweep, launches the worker pool, and
// begins the periodic stuck-task monitor.
func (r *TaskRunner) Start() error {
	if err := r.sweepStuckTasks(r.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner. Queued-but-unstarted work is
// abandoned; it stays pending in the store and is requeued by the recovery
// sweep on the next start.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.pool.Stop()
	r.queue.Close()
}

// sweepStuckTasks requeues pending records older than the stuck-task age
// (crash before claim, or submissions stranded by a full queue) and fails
// processing records older than the stuck-task age, whose executor run is
// gone for good.
func (r *TaskRunner) sweepStuckTasks(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.config.StuckTaskAge)

	stalePending, err := r.store.FindStale(ctx, domain.TaskStatusPending, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale pending tasks: %w", err)
	}

	staleProcessing, err := r.store.FindStale(ctx, domain.TaskStatusProcessing, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale processing tasks: %w", err)
	}

	if len(stalePending) == 0 && len(staleProcessing) == 0 {
		return nil
	}

	r.logger.Info("recovering stranded tasks",
		"pending_count", len(stalePending),
		"processing_count", len(staleProcessing))

	for _, record := range stalePending {
		task, err := r.builder.CreateTask(record.ID)
		if err != nil {
			r.logger.Error("failed to rebuild stale pending task",
				"task_id", record.ID,
				"error", err)
			continue
		}

		if err := r.queue.Enqueue(task); err != nil {
			// Queue is full or closed; the record stays pending and the
			// next sweep retries it.
			r.logger.Error("failed to requeue stale pending task",
				"task_id", record.ID,
				"error", err)
			continue
		}

		r.logger.Info("requeued stale pending task", "task_id", record.ID)
	}

	for _, record := range staleProcessing {
		if err := r.store.MarkFailed(ctx, record.ID, stuckTaskReason); err != nil {
			r.logger.Error("failed to fail stuck processing task",
				"task_id", record.ID,
				"error", err)
			continue
		}

		r.logger.Info("failed stuck processing task",
			"task_id", record.ID,
			"stuck_since", record.UpdatedAt)
	}

	return nil
}

// stuckTaskMonitor periodically re-runs the recovery sweep until the runner
// stops.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			if err := r.sweepStuckTasks(r.ctx); err != nil {
				r.logger.Error("stuck task sweep failed", "error", err)
			}
		}
	}
}
