package task

import (
	"log/slog"

	"github.com/phrazzld/relay-api/internal/events"
)

// MediaGenerationTaskFactory creates MediaGenerationTask instances from
// inbound generation requests.
type MediaGenerationTaskFactory struct {
	deps   GenerationDeps
	logger *slog.Logger
}

// NewMediaGenerationTaskFactory creates a new factory for media
// generation tasks.
func NewMediaGenerationTaskFactory(deps GenerationDeps) (*MediaGenerationTaskFactory, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &MediaGenerationTaskFactory{
		deps:   deps,
		logger: deps.Logger.With("component", "media_generation_task_factory"),
	}, nil
}

// CreateTask creates a new MediaGenerationTask for the given request.
func (f *MediaGenerationTaskFactory) CreateTask(req events.GenerationRequested, correlationID string) (Task, error) {
	task, err := NewMediaGenerationTask(req, correlationID, f.deps)
	if err != nil {
		return nil, err
	}
	return task, nil
}
