package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/domain"
)

// Common errors returned by task stores.
var (
	// ErrTaskNotFound is returned when the task id is unknown.
	ErrTaskNotFound = errors.New("task not found")
)

// StateUpdate carries the optional fields of a state transition. Zero
// values leave the corresponding task field untouched.
type StateUpdate struct {
	// Progress, when non-nil, replaces the task's progress percent
	// (clamped to [0, 100]).
	Progress *int

	// Result, when non-nil, is recorded as the task's success payload.
	Result *domain.TaskResult

	// Error, when non-empty, replaces the task's last failure message.
	Error string

	// IncrementRetry bumps RetryCount by one as part of the transition.
	// Used by the orchestrator's requeue-for-retry path.
	IncrementRetry bool
}

// Store is the registry of task identity to state. It is the single
// owner of each mutable task record: state transitions for one task id
// are linearized by the store, and every update stamps UpdatedAt and
// sets CompletedAt on entry to a terminal state.
type Store interface {
	// Create registers a new task in the pending state with a fresh id.
	Create(ctx context.Context, taskType domain.TaskType, metadata map[string]any, maxRetries int) (*domain.GenerationTask, error)

	// Get returns a snapshot of the task, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// UpdateState applies a state transition. It fails with
	// ErrTaskNotFound for unknown ids and with a
	// domain.ErrInvalidTransition wrap when the state machine forbids the
	// move. Returns the updated snapshot.
	UpdateState(ctx context.Context, id uuid.UUID, next domain.TaskState, upd StateUpdate) (*domain.GenerationTask, error)

	// UpdateProgress records a best-effort progress estimate, clamping
	// percent to [0, 100]. The task's state is left unchanged.
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error

	// Cancel moves the task to the cancelled state. Cancelling a task
	// already in a terminal state is a no-op, not an error.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Cleanup removes terminal tasks whose UpdatedAt precedes the cutoff
	// and returns the count removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// clampPercent bounds a progress value to [0, 100].
func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
