package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/relay-api/internal/domain"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx, domain.TaskTypeImage, map[string]any{"model": "img-model"}, 3)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, domain.TaskStatePending, created.State)
	assert.Equal(t, 3, created.MaxRetries)
	assert.Equal(t, 0, created.RetryCount)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "img-model", got.Metadata["model"])

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryStoreUpdateState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid transition stamps timestamps", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
		require.NoError(t, err)

		updated, err := store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, StateUpdate{})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateProcessing, updated.State)
		assert.Nil(t, updated.CompletedAt)

		progress := 100
		updated, err = store.UpdateState(ctx, created.ID, domain.TaskStateCompleted, StateUpdate{
			Progress: &progress,
			Result:   &domain.TaskResult{URL: "https://cdn.example.com/out.png", Units: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCompleted, updated.State)
		assert.Equal(t, 100, updated.ProgressPercent)
		assert.NotNil(t, updated.CompletedAt)
		require.NotNil(t, updated.Result)
		assert.Equal(t, "https://cdn.example.com/out.png", updated.Result.URL)
	})

	t.Run("invalid transition is rejected", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
		require.NoError(t, err)

		_, err = store.UpdateState(ctx, created.ID, domain.TaskStateCompleted, StateUpdate{})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		// State is unchanged after the rejection.
		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatePending, got.State)
	})

	t.Run("retry requeue increments the retry count", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 2)
		require.NoError(t, err)

		_, err = store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, StateUpdate{})
		require.NoError(t, err)
		_, err = store.UpdateState(ctx, created.ID, domain.TaskStateFailed, StateUpdate{Error: "boom"})
		require.NoError(t, err)

		updated, err := store.UpdateState(ctx, created.ID, domain.TaskStatePending, StateUpdate{IncrementRetry: true})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.RetryCount)
		assert.Equal(t, domain.TaskStatePending, updated.State)
		// Re-entering a non-terminal state clears CompletedAt.
		assert.Nil(t, updated.CompletedAt)
	})

	t.Run("progress is clamped", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
		require.NoError(t, err)

		over := 150
		updated, err := store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, StateUpdate{Progress: &over})
		require.NoError(t, err)
		assert.Equal(t, 100, updated.ProgressPercent)
	})

	t.Run("unknown task", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.UpdateState(ctx, uuid.New(), domain.TaskStateProcessing, StateUpdate{})
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestMemoryStoreUpdateProgress(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
	require.NoError(t, err)

	require.NoError(t, store.UpdateProgress(ctx, created.ID, 30, "working"))
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.ProgressPercent)

	require.NoError(t, store.UpdateProgress(ctx, created.ID, -5, ""))
	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProgressPercent)

	assert.ErrorIs(t, store.UpdateProgress(ctx, uuid.New(), 10, ""), ErrTaskNotFound)
}

func TestMemoryStoreCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("pending task is cancelled", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
		require.NoError(t, err)

		require.NoError(t, store.Cancel(ctx, created.ID))
		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCancelled, got.State)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("terminal task is a no-op", func(t *testing.T) {
		store := NewMemoryStore()
		created, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
		require.NoError(t, err)
		_, err = store.UpdateState(ctx, created.ID, domain.TaskStateProcessing, StateUpdate{})
		require.NoError(t, err)
		_, err = store.UpdateState(ctx, created.ID, domain.TaskStateCompleted, StateUpdate{})
		require.NoError(t, err)

		require.NoError(t, store.Cancel(ctx, created.ID))
		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCompleted, got.State)
	})

	t.Run("unknown task", func(t *testing.T) {
		store := NewMemoryStore()
		assert.ErrorIs(t, store.Cancel(ctx, uuid.New()), ErrTaskNotFound)
	})
}

func TestMemoryStoreCleanup(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	stale, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, stale.ID))

	fresh, err := store.Create(ctx, domain.TaskTypeImage, nil, 0)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Everything terminal and older than the cutoff goes; the pending
	// task stays regardless of age.
	removed, err := store.Cleanup(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	created, err := store.Create(ctx, domain.TaskTypeImage, map[string]any{"model": "img-model"}, 0)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	got.Metadata["model"] = "mutated"
	got.State = domain.TaskStateFailed

	again, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "img-model", again.Metadata["model"])
	assert.Equal(t, domain.TaskStatePending, again.State)
}
