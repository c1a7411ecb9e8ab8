package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrAlreadyRegistered is returned when a cancellation handle is
// registered for a task id that already has one. A task cannot run twice
// concurrently under the same id.
var ErrAlreadyRegistered = errors.New("cancellation handle already registered for task")

// CancellationRegistry maps an in-flight task id to its cancellation
// handle so an external cancel request can stop work running in another
// goroutine.
type CancellationRegistry struct {
	mu      sync.Mutex
	handles map[uuid.UUID]context.CancelFunc
}

// NewCancellationRegistry creates an empty CancellationRegistry.
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{
		handles: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Register stores the cancellation handle for a task about to run.
func (r *CancellationRegistry) Register(id uuid.UUID, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.handles[id] = cancel
	return nil
}

// Cancel signals the handle registered for the task, if any. Returns
// true if a handle was signalled. A missing handle is not an error:
// cancellation is inherently racy with completion.
func (r *CancellationRegistry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.handles[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// Unregister removes the entry for a task. Always called once the
// generation call returns, errors or is cancelled.
func (r *CancellationRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Len returns the number of registered handles.
func (r *CancellationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
