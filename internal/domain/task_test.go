package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStateIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskStatePending.IsTerminal())
	assert.False(t, TaskStateProcessing.IsTerminal())
	assert.True(t, TaskStateCompleted.IsTerminal())
	assert.True(t, TaskStateFailed.IsTerminal())
	assert.True(t, TaskStateCancelled.IsTerminal())
	assert.True(t, TaskStateTimedOut.IsTerminal())
}

func TestTaskStateCanTransitionTo(t *testing.T) {
	t.Parallel()

	states := []TaskState{
		TaskStatePending,
		TaskStateProcessing,
		TaskStateCompleted,
		TaskStateFailed,
		TaskStateCancelled,
		TaskStateTimedOut,
	}

	allowed := map[TaskState][]TaskState{
		TaskStatePending:    {TaskStateProcessing, TaskStateCancelled, TaskStateFailed, TaskStateTimedOut},
		TaskStateProcessing: {TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateTimedOut},
		TaskStateFailed:     {TaskStatePending},
		TaskStateTimedOut:   {TaskStatePending},
		TaskStateCompleted:  {},
		TaskStateCancelled:  {},
	}

	for _, from := range states {
		for _, to := range states {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
					break
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestGenerationTaskClone(t *testing.T) {
	t.Parallel()

	completedAt := time.Now()
	orig := &GenerationTask{
		ID:          uuid.New(),
		Type:        TaskTypeImage,
		State:       TaskStateCompleted,
		CompletedAt: &completedAt,
		Metadata:    map[string]any{"model": "img-model"},
		Result:      &TaskResult{URL: "https://cdn.example.com/out.png", Units: 1},
	}

	cp := orig.Clone()
	require.Equal(t, orig, cp)

	// Mutating the clone must not reach the original.
	cp.Metadata["model"] = "other"
	cp.Result.URL = "changed"
	*cp.CompletedAt = completedAt.Add(time.Hour)

	assert.Equal(t, "img-model", orig.Metadata["model"])
	assert.Equal(t, "https://cdn.example.com/out.png", orig.Result.URL)
	assert.True(t, orig.CompletedAt.Equal(completedAt))
}
