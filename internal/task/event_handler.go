package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/events"
)

// TaskFactory creates runnable tasks from inbound generation requests.
type TaskFactory interface {
	CreateTask(req events.GenerationRequested, correlationID string) (Task, error)
}

// TaskSubmitter accepts tasks for background execution.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}

// GenerationEventHandler implements the events.Handler interface for the
// pipeline's inbound events: generation requests become queued tasks,
// and external cancel requests are forwarded to the cancellation
// registry.
type GenerationEventHandler struct {
	factory       TaskFactory
	submitter     TaskSubmitter
	cancellations *CancellationRegistry
	logger        *slog.Logger
}

// NewGenerationEventHandler creates a handler wiring the factory, the
// runner and the cancellation registry together.
func NewGenerationEventHandler(
	factory TaskFactory,
	submitter TaskSubmitter,
	cancellations *CancellationRegistry,
	logger *slog.Logger,
) *GenerationEventHandler {
	return &GenerationEventHandler{
		factory:       factory,
		submitter:     submitter,
		cancellations: cancellations,
		logger:        logger.With("component", "generation_event_handler"),
	}
}

// HandleEvent processes inbound pipeline events.
func (h *GenerationEventHandler) HandleEvent(ctx context.Context, event *events.Envelope) error {
	switch event.Type {
	case events.TypeGenerationRequested:
		return h.handleRequested(ctx, event)
	case events.TypeGenerationCancelled:
		return h.handleCancelRequested(ctx, event)
	default:
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}
}

func (h *GenerationEventHandler) handleRequested(ctx context.Context, event *events.Envelope) error {
	var req events.GenerationRequested
	if err := event.UnmarshalPayload(&req); err != nil {
		h.logger.Error("failed to unmarshal generation request", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal generation request: %w", err)
	}

	// Synchronous requests are answered inline by the API layer; only
	// async jobs flow through the pipeline.
	if !req.IsAsync {
		h.logger.Debug("ignoring synchronous generation request",
			"task_id", req.TaskID,
			"event_id", event.ID)
		return nil
	}

	task, err := h.factory.CreateTask(req, event.CorrelationID)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"task_id", req.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.submitter.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", req.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("generation task submitted",
		"task_id", req.TaskID,
		"model", req.Model,
		"event_id", event.ID)
	return nil
}

func (h *GenerationEventHandler) handleCancelRequested(ctx context.Context, event *events.Envelope) error {
	var req events.GenerationCancelled
	if err := event.UnmarshalPayload(&req); err != nil {
		h.logger.Error("failed to unmarshal cancel request", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal cancel request: %w", err)
	}

	// Cancellation is racy with completion: a missing handle means the
	// task already finished (or never started), which is fine.
	signalled := h.cancellations.Cancel(req.TaskID)
	h.logger.Info("cancel request processed",
		"task_id", req.TaskID,
		"handle_signalled", signalled,
		"event_id", event.ID)
	return nil
}

// Ensure GenerationEventHandler implements events.Handler
var _ events.Handler = (*GenerationEventHandler)(nil)
