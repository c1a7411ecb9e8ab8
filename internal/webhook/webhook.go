package webhook

import (
	"context"

	"github.com/google/uuid"
)

// Status values carried on webhook payloads.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusRetrying   = "retrying"
)

// Payload is the JSON body POSTed to a caller-supplied webhook URL.
// Status-specific fields are omitted when empty.
type Payload struct {
	TaskID             uuid.UUID `json:"task_id"`
	Status             string    `json:"status"`
	ProgressPercentage int       `json:"progress_percentage,omitempty"`
	Message            string    `json:"message,omitempty"`
	ResultURL          string    `json:"result_url,omitempty"`
	DurationSeconds    float64   `json:"duration_seconds,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Sender delivers webhook payloads. Delivery is best-effort at every
// call site: a failed webhook never changes a task's outcome.
type Sender interface {
	Send(ctx context.Context, url string, headers map[string]string, payload Payload) error
}
