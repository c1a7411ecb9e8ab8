package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/domain"
)

// MemoryStore is an in-process Store implementation backed by a map.
// It satisfies the same contract as the Postgres-backed store, so the
// orchestrator can be wired against either without changes.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.GenerationTask
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*domain.GenerationTask),
	}
}

// Create registers a new task in the pending state with a fresh id.
func (s *MemoryStore) Create(ctx context.Context, taskType domain.TaskType, metadata map[string]any, maxRetries int) (*domain.GenerationTask, error) {
	now := time.Now()
	t := &domain.GenerationTask{
		ID:         uuid.New(),
		Type:       taskType,
		State:      domain.TaskStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: maxRetries,
		Metadata:   metadata,
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	return t.Clone(), nil
}

// Get returns a snapshot of the task, or ErrTaskNotFound.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// UpdateState applies a state transition under the store lock, so
// transitions for one task id are linearized.
func (s *MemoryStore) UpdateState(ctx context.Context, id uuid.UUID, next domain.TaskState, upd StateUpdate) (*domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if !t.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.State, next)
	}

	now := time.Now()
	t.State = next
	t.UpdatedAt = now
	if next.IsTerminal() {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}

	if upd.Progress != nil {
		t.ProgressPercent = clampPercent(*upd.Progress)
	}
	if upd.Result != nil {
		res := *upd.Result
		t.Result = &res
	}
	if upd.Error != "" {
		t.Error = upd.Error
	}
	if upd.IncrementRetry {
		t.RetryCount++
	}

	return t.Clone(), nil
}

// UpdateProgress records a progress estimate without changing state.
func (s *MemoryStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	t.ProgressPercent = clampPercent(percent)
	t.UpdatedAt = time.Now()
	return nil
}

// Cancel moves the task to the cancelled state. A no-op when the task is
// already terminal.
func (s *MemoryStore) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.State.IsTerminal() {
		return nil
	}

	now := time.Now()
	t.State = domain.TaskStateCancelled
	t.Error = "cancelled"
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}

// Cleanup removes terminal tasks whose UpdatedAt precedes the cutoff.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.State.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
