package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type identifiers for the generation pipeline lifecycle.
const (
	TypeGenerationRequested       = "generation.requested"
	TypeGenerationStarted         = "generation.started"
	TypeGenerationProgress        = "generation.progress"
	TypeGenerationCompleted       = "generation.completed"
	TypeGenerationFailed          = "generation.failed"
	TypeGenerationCancelled       = "generation.cancelled"
	TypeProviderQuarantined       = "provider.quarantined"
	TypeProviderFailoverInitiated = "provider.failover_initiated"
)

// Envelope wraps a lifecycle event payload for transport on the message
// bus. Every envelope carries a caller-supplied correlation id so related
// events can be tied back to the originating request.
type Envelope struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which lifecycle event the payload holds
	Type string `json:"type"`

	// CorrelationID ties the event back to the originating request
	CorrelationID string `json:"correlation_id"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the envelope payload into the provided structure.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEnvelope creates an Envelope of the given type wrapping the payload.
func NewEnvelope(eventType, correlationID string, payload interface{}) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            uuid.New(),
		Type:          eventType,
		CorrelationID: correlationID,
		Payload:       payloadBytes,
		CreatedAt:     time.Now(),
	}, nil
}

// GenerationRequested asks the pipeline to run one asynchronous
// generation job. The task referenced by TaskID already exists in the
// task store in the pending state.
type GenerationRequested struct {
	TaskID         uuid.UUID         `json:"task_id"`
	Model          string            `json:"model"`
	Prompt         string            `json:"prompt"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	IsAsync        bool              `json:"is_async"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	VirtualKeyID   string            `json:"virtual_key_id"`
}

// GenerationStarted signals that a task has begun processing.
type GenerationStarted struct {
	TaskID           uuid.UUID `json:"task_id"`
	Provider         string    `json:"provider"`
	StartedAt        time.Time `json:"started_at"`
	EstimatedSeconds int       `json:"estimated_seconds"`
}

// GenerationProgress carries a best-effort percent-complete estimate.
type GenerationProgress struct {
	TaskID             uuid.UUID `json:"task_id"`
	ProgressPercentage int       `json:"progress_percentage"`
	Status             string    `json:"status"`
	Message            string    `json:"message,omitempty"`
}

// GenerationCompleted signals a successful terminal outcome.
type GenerationCompleted struct {
	TaskID      uuid.UUID `json:"task_id"`
	ResultURL   string    `json:"result_url"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// GenerationFailed signals a failed attempt. When IsRetryable is true the
// task has been requeued and an external scheduler re-delivers the
// request at or after NextRetryAt.
type GenerationFailed struct {
	TaskID      uuid.UUID  `json:"task_id"`
	Error       string     `json:"error"`
	ErrorCode   string     `json:"error_code"`
	IsRetryable bool       `json:"is_retryable"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	FailedAt    time.Time  `json:"failed_at"`
}

// GenerationCancelled is both the inbound external cancel request and the
// outbound confirmation that a task ended in the cancelled state.
type GenerationCancelled struct {
	TaskID      uuid.UUID `json:"task_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// ProviderQuarantined signals that a provider was removed from routing
// eligibility due to sustained failures.
type ProviderQuarantined struct {
	ProviderID    string    `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}

// ProviderFailoverInitiated signals that a substitute provider was chosen
// for future traffic after the primary failed.
type ProviderFailoverInitiated struct {
	FailedProviderID   string    `json:"failed_provider_id"`
	FailoverProviderID string    `json:"failover_provider_id"`
	InitiatedAt        time.Time `json:"initiated_at"`
}

// Handler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Envelope) error
}

// Emitter defines an interface for components that can emit events.
// This allows the pipeline to publish events without direct knowledge of
// the message bus transport.
type Emitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Envelope) error
}
