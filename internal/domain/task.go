package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a generation task.
type TaskState string

// Possible task states.
const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
	TaskStateTimedOut   TaskState = "timed_out"
)

// IsTerminal returns true if the state represents a final outcome.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateTimedOut:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits a transition
// from s to next. Failed and TimedOut tasks may re-enter Pending via the
// orchestrator's retry path; all other terminal states are absorbing.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStatePending:
		switch next {
		case TaskStateProcessing, TaskStateCancelled, TaskStateFailed, TaskStateTimedOut:
			return true
		}
	case TaskStateProcessing:
		switch next {
		case TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateTimedOut:
			return true
		}
	case TaskStateFailed, TaskStateTimedOut:
		return next == TaskStatePending
	}
	return false
}

// TaskType identifies the kind of media a task produces.
type TaskType string

// Supported task types.
const (
	TaskTypeVideo TaskType = "video"
	TaskTypeImage TaskType = "image"
)

// TaskResult is the success payload recorded on a completed task.
type TaskResult struct {
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms"`
	Units      int    `json:"units"`
}

// GenerationTask is one asynchronous generation job tracked from request
// to terminal outcome. The task store owns the mutable record; all
// mutation goes through its update operations, which stamp UpdatedAt and
// set CompletedAt on entry to a terminal state.
type GenerationTask struct {
	ID              uuid.UUID
	Type            TaskType
	State           TaskState
	ProgressPercent int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	RetryCount      int
	MaxRetries      int
	Metadata        map[string]any
	Result          *TaskResult
	Error           string
}

// Clone returns a deep-enough copy of the task that callers can hold
// without racing the store's record.
func (t *GenerationTask) Clone() *GenerationTask {
	cp := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.Result != nil {
		res := *t.Result
		cp.Result = &res
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
