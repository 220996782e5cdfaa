// Package memory provides an in-memory implementation of the data storage
// interfaces defined in the internal/store package. It backs unit tests and
// the single-process development mode; it is not durable across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/store"
)

// MemoryTaskStore implements store.TaskStore with a mutex-guarded map.
// Every operation works on copies, so callers can never mutate stored state
// without going through the store's atomic update contract.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]domain.Task
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]domain.Task),
	}
}

// Ensure MemoryTaskStore implements store.TaskStore
var _ store.TaskStore = (*MemoryTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}

	s.tasks[task.ID] = *task
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *MemoryTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	copied := task
	return &copied, nil
}

// List implements store.TaskStore.List
// Results are ordered by creation time with ties broken by id, matching the
// SQL implementation, so pagination is stable across both backends.
func (s *MemoryTaskStore) List(
	_ context.Context,
	filter store.TaskFilter,
	page store.Page,
) ([]*domain.Task, int, error) {
	s.mu.RLock()

	matched := make([]domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		if filter.OwnerID != nil && (!task.OwnerID.Valid || task.OwnerID.UUID != *filter.OwnerID) {
			continue
		}
		matched = append(matched, task)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return strings.Compare(matched[i].ID.String(), matched[j].ID.String()) < 0
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= total {
		return []*domain.Task{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	items := make([]*domain.Task, 0, end-offset)
	for i := offset; i < end; i++ {
		copied := matched[i]
		items = append(items, &copied)
	}

	return items, total, nil
}

// Update implements store.TaskStore.Update
// The whole read-modify-write runs under one lock, so concurrent updates on
// the same id serialize and never lose writes.
func (s *MemoryTaskStore) Update(
	_ context.Context,
	id uuid.UUID,
	fn store.UpdateFn,
) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	updated := current
	if err := fn(&updated); err != nil {
		return nil, err
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.tasks[id] = updated
	copied := updated
	return &copied, nil
}

// ClaimPending implements store.TaskStore.ClaimPending
func (s *MemoryTaskStore) ClaimPending(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusPending {
		return false, nil
	}

	task.Status = domain.TaskStatusProcessing
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
	return true, nil
}

// MarkCompleted implements store.TaskStore.MarkCompleted
func (s *MemoryTaskStore) MarkCompleted(_ context.Context, id uuid.UUID, resultRef string) error {
	return s.finishTask(id, func(task *domain.Task) error {
		return task.Complete(resultRef)
	})
}

// MarkFailed implements store.TaskStore.MarkFailed
func (s *MemoryTaskStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return s.finishTask(id, func(task *domain.Task) error {
		return task.Fail(reason)
	})
}

// finishTask applies a terminal transition under the store lock. Tasks that
// are missing or not processing report ErrTaskNotFound, mirroring the SQL
// implementation's status-guarded UPDATE.
func (s *MemoryTaskStore) finishTask(id uuid.UUID, transition func(*domain.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusProcessing {
		return store.ErrTaskNotFound
	}

	if err := transition(&task); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.tasks[id] = task
	return nil
}

// Delete implements store.TaskStore.Delete
func (s *MemoryTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}

	delete(s.tasks, id)
	return nil
}

// CountByStatus implements store.TaskStore.CountByStatus
func (s *MemoryTaskStore) CountByStatus(_ context.Context) (map[domain.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[domain.TaskStatus]int{
		domain.TaskStatusPending:    0,
		domain.TaskStatusProcessing: 0,
		domain.TaskStatusCompleted:  0,
		domain.TaskStatusFailed:     0,
	}
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

// FindStale implements store.TaskStore.FindStale
func (s *MemoryTaskStore) FindStale(
	_ context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
) ([]*domain.Task, error) {
	s.mu.RLock()

	var stale []domain.Task
	for _, task := range s.tasks {
		if task.Status == status && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, task)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})

	tasks := make([]*domain.Task, 0, len(stale))
	for i := range stale {
		copied := stale[i]
		tasks = append(tasks, &copied)
	}
	return tasks, nil
}
