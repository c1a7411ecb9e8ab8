package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/domain"
)

// PollUntilTerminal repeatedly reads a task's state until it becomes
// terminal or the wall-clock timeout elapses. On timeout it forces a
// TimedOut transition through the store and returns the final snapshot.
// The forced transition is linearized with concurrent updates: if the
// task reached a terminal state in the race window, the store rejects
// the transition and the terminal snapshot found is returned instead.
//
// This is the only blocking operation in the component; it observes ctx
// at every suspension point.
func PollUntilTerminal(ctx context.Context, store Store, id uuid.UUID, interval, timeout time.Duration) (*domain.GenerationTask, error) {
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.State.IsTerminal() {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return forceTimeout(ctx, store, id)
		case <-ticker.C:
		}
	}
}

// forceTimeout transitions the task to TimedOut, tolerating the race
// where the task went terminal between the last read and now.
func forceTimeout(ctx context.Context, store Store, id uuid.UUID) (*domain.GenerationTask, error) {
	t, err := store.UpdateState(ctx, id, domain.TaskStateTimedOut, StateUpdate{
		Error: "polling timed out",
	})
	if err == nil {
		return t, nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return store.Get(ctx, id)
	}
	return nil, err
}
