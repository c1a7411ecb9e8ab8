package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/relay-api/internal/billing"
	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/provider"
	"github.com/phrazzld/relay-api/internal/service/keys"
	"github.com/phrazzld/relay-api/internal/storage"
	"github.com/phrazzld/relay-api/internal/webhook"
)

// Task type constants
const (
	// TaskTypeMediaGeneration represents the task type for asynchronous
	// media generation jobs.
	TaskTypeMediaGeneration = "media_generation"
)

// Common errors
var (
	ErrNilStore         = errors.New("task store cannot be nil")
	ErrNilResolver      = errors.New("provider resolver cannot be nil")
	ErrNilKeyValidator  = errors.New("key validator cannot be nil")
	ErrNilHealth        = errors.New("health reporter cannot be nil")
	ErrNilEmitter       = errors.New("event emitter cannot be nil")
	ErrNilMediaStore    = errors.New("media store cannot be nil")
	ErrNilCancellations = errors.New("cancellation registry cannot be nil")
	ErrNilLogger        = errors.New("logger cannot be nil")
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
)

// ProviderResolver looks up the provider, adapter and mapping for a
// public model name.
type ProviderResolver interface {
	Resolve(model string) (provider.Provider, provider.Generator, provider.ModelMapping, error)
}

// HealthReporter receives the pipeline's per-call provider health
// observations.
type HealthReporter interface {
	RecordSuccess(providerID string)
	RecordFailure(ctx context.Context, providerID string, err error) (domain.ProviderHealthState, bool)
	RecordLatency(providerID string, observed time.Duration)
}

// FailoverHandler picks and records a substitute after a provider is
// quarantined.
type FailoverHandler interface {
	FailOver(ctx context.Context, failedProviderID string, capability provider.Capability, reason string) domain.FailoverState
}

// PipelineConfig holds the orchestration tunables of one generation task.
type PipelineConfig struct {
	// RetryBaseDelay is the base of the exponential backoff schedule:
	// delay = RetryBaseDelay * 2^retryCount, capped at RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// ProgressInterval is how often the progress reporter wakes up.
	ProgressInterval time.Duration

	// BatchConcurrency bounds how many artifacts of one result are
	// persisted in parallel.
	BatchConcurrency int64

	// DefaultEstimatedSeconds is used when the model mapping does not
	// carry its own estimate.
	DefaultEstimatedSeconds int
}

// DefaultPipelineConfig returns a PipelineConfig with reasonable defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RetryBaseDelay:          2 * time.Second,
		RetryMaxDelay:           5 * time.Minute,
		ProgressInterval:        5 * time.Second,
		BatchConcurrency:        4,
		DefaultEstimatedSeconds: 60,
	}
}

// GenerationDeps bundles the collaborators a media generation task needs.
// Webhooks, costs, ledger and failover are optional; the rest are
// required.
type GenerationDeps struct {
	Store         Store
	Resolver      ProviderResolver
	Keys          keys.Validator
	Health        HealthReporter
	Failover      FailoverHandler
	Emitter       events.Emitter
	Webhooks      webhook.Sender
	Media         storage.MediaStore
	Costs         billing.CostCalculator
	Ledger        billing.Ledger
	Cancellations *CancellationRegistry
	Config        PipelineConfig
	Logger        *slog.Logger
}

func (d *GenerationDeps) validate() error {
	switch {
	case d.Store == nil:
		return ErrNilStore
	case d.Resolver == nil:
		return ErrNilResolver
	case d.Keys == nil:
		return ErrNilKeyValidator
	case d.Health == nil:
		return ErrNilHealth
	case d.Emitter == nil:
		return ErrNilEmitter
	case d.Media == nil:
		return ErrNilMediaStore
	case d.Cancellations == nil:
		return ErrNilCancellations
	case d.Logger == nil:
		return ErrNilLogger
	}
	return nil
}

// MediaGenerationTask drives one generation job from a
// GenerationRequested event to a terminal state. It implements the Task
// interface consumed by the runner.
type MediaGenerationTask struct {
	taskID        uuid.UUID
	req           events.GenerationRequested
	correlationID string
	deps          GenerationDeps
	logger        *slog.Logger
	status        domain.TaskState
}

// NewMediaGenerationTask creates a media generation task for the given
// request.
func NewMediaGenerationTask(req events.GenerationRequested, correlationID string, deps GenerationDeps) (*MediaGenerationTask, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if req.TaskID == uuid.Nil {
		return nil, ErrEmptyTaskID
	}

	if deps.Config.ProgressInterval <= 0 {
		deps.Config.ProgressInterval = DefaultPipelineConfig().ProgressInterval
	}
	if deps.Config.RetryBaseDelay <= 0 {
		deps.Config.RetryBaseDelay = DefaultPipelineConfig().RetryBaseDelay
	}
	if deps.Config.BatchConcurrency <= 0 {
		deps.Config.BatchConcurrency = DefaultPipelineConfig().BatchConcurrency
	}
	if deps.Config.DefaultEstimatedSeconds <= 0 {
		deps.Config.DefaultEstimatedSeconds = DefaultPipelineConfig().DefaultEstimatedSeconds
	}

	return &MediaGenerationTask{
		taskID:        req.TaskID,
		req:           req,
		correlationID: correlationID,
		deps:          deps,
		logger:        deps.Logger.With("task_type", TaskTypeMediaGeneration, "task_id", req.TaskID),
		status:        domain.TaskStatePending,
	}, nil
}

// ID returns the task's unique identifier.
func (t *MediaGenerationTask) ID() uuid.UUID {
	return t.taskID
}

// Type returns the task type identifier.
func (t *MediaGenerationTask) Type() string {
	return TaskTypeMediaGeneration
}

// Payload returns the originating request as a byte slice.
func (t *MediaGenerationTask) Payload() []byte {
	data, err := json.Marshal(t.req)
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the task's last observed state.
func (t *MediaGenerationTask) Status() domain.TaskState {
	return t.status
}

// Execute runs the generation job: transition to processing, fail-fast
// validation, the cancellable provider call with a supervised progress
// reporter, then exactly one of the success, cancellation or failure
// paths. The cancellation handle is unregistered on every path.
func (t *MediaGenerationTask) Execute(ctx context.Context) error {
	snap, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateProcessing, StateUpdate{})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// The task went terminal (for example cancelled) before a
			// worker picked it up. Nothing to do.
			t.logger.Info("task no longer pending, skipping", "error", err)
			return nil
		}
		return fmt.Errorf("failed to transition task to processing: %w", err)
	}
	t.status = domain.TaskStateProcessing
	t.logger.Info("starting media generation task", "model", t.req.Model)

	// Fail-fast checks: bad keys, unknown models and capability
	// mismatches are terminal and never retried.
	if _, err := t.deps.Keys.Validate(ctx, t.req.VirtualKeyID); err != nil {
		return t.failValidation(ctx, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err))
	}

	prov, gen, mapping, err := t.deps.Resolver.Resolve(t.req.Model)
	if err != nil {
		return t.failValidation(ctx, err)
	}

	estimated := mapping.EstimatedSeconds
	if estimated <= 0 {
		estimated = t.deps.Config.DefaultEstimatedSeconds
	}

	startedAt := time.Now()
	t.emit(ctx, events.TypeGenerationStarted, events.GenerationStarted{
		TaskID:           t.taskID,
		Provider:         prov.ID,
		StartedAt:        startedAt,
		EstimatedSeconds: estimated,
	})

	// Register the cancellation handle before invoking the provider so an
	// external cancel can reach the in-flight call.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := t.deps.Cancellations.Register(t.taskID, cancel); err != nil {
		return fmt.Errorf("failed to register cancellation handle: %w", err)
	}
	defer t.deps.Cancellations.Unregister(t.taskID)

	// The progress reporter shares the provider call's cancellation scope
	// and is joined, not abandoned, once the call returns.
	progressCtx, stopProgress := context.WithCancel(runCtx)
	var reporters errgroup.Group
	reporters.Go(func() error {
		t.reportProgress(progressCtx, startedAt, estimated)
		return nil
	})

	outcome := gen.Generate(runCtx, provider.Request{
		TaskID:     t.taskID,
		Model:      t.req.Model,
		Prompt:     t.req.Prompt,
		Parameters: t.req.Parameters,
	})
	latency := time.Since(startedAt)

	stopProgress()
	_ = reporters.Wait()

	switch {
	case outcome.Succeeded():
		return t.handleSuccess(ctx, prov, outcome.Result, latency)
	case outcome.Kind == provider.KindCancelled:
		if ctx.Err() != nil {
			// Process shutdown, not an external cancel request: leave the
			// task as-is so recovery can requeue it.
			return ctx.Err()
		}
		return t.handleCancelled(ctx)
	default:
		return t.handleFailure(ctx, prov, mapping, outcome, snap)
	}
}

// failValidation terminally fails the task for a non-retryable
// validation error.
func (t *MediaGenerationTask) failValidation(ctx context.Context, cause error) error {
	t.logger.Warn("request failed validation", "error", cause)

	snap, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateFailed, StateUpdate{
		Error: cause.Error(),
	})
	if err != nil {
		t.logger.Error("failed to record validation failure", "error", err)
		return fmt.Errorf("failed to record validation failure: %w", err)
	}
	t.status = domain.TaskStateFailed

	now := time.Now()
	t.emit(ctx, events.TypeGenerationFailed, events.GenerationFailed{
		TaskID:      t.taskID,
		Error:       cause.Error(),
		ErrorCode:   provider.KindValidation.String(),
		IsRetryable: false,
		RetryCount:  snap.RetryCount,
		MaxRetries:  snap.MaxRetries,
		FailedAt:    now,
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID: t.taskID,
		Status: webhook.StatusFailed,
		Error:  cause.Error(),
	})

	return fmt.Errorf("media generation request rejected: %w", cause)
}

// handleSuccess persists the result, charges cost and records the
// completed terminal state.
func (t *MediaGenerationTask) handleSuccess(ctx context.Context, prov provider.Provider, result *provider.Result, latency time.Duration) error {
	resultURL, err := t.persistArtifacts(ctx, result)
	if err != nil {
		t.logger.Error("failed to persist generation result", "error", err)
		return t.failInfrastructure(ctx, fmt.Errorf("failed to persist result: %w", err))
	}

	t.deps.Health.RecordSuccess(prov.ID)
	t.deps.Health.RecordLatency(prov.ID, latency)

	// Cost and billing are best-effort collaborators: their failures are
	// logged and never block the terminal state.
	if t.deps.Costs != nil && t.deps.Ledger != nil {
		cost := t.deps.Costs.Cost(t.req.Model, result.Units)
		if err := t.deps.Ledger.Deduct(ctx, t.req.VirtualKeyID, cost); err != nil {
			t.logger.Error("failed to deduct spend",
				"virtual_key_id", t.req.VirtualKeyID,
				"cost", cost,
				"error", err)
		}
	}

	progress := 100
	_, err = t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateCompleted, StateUpdate{
		Progress: &progress,
		Result: &domain.TaskResult{
			URL:        resultURL,
			DurationMs: latency.Milliseconds(),
			Units:      result.Units,
		},
	})
	if err != nil {
		t.logger.Error("failed to record completed state", "error", err)
		return fmt.Errorf("failed to record completed state: %w", err)
	}
	t.status = domain.TaskStateCompleted

	now := time.Now()
	t.emit(ctx, events.TypeGenerationCompleted, events.GenerationCompleted{
		TaskID:      t.taskID,
		ResultURL:   resultURL,
		CompletedAt: now,
		DurationMs:  latency.Milliseconds(),
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID:          t.taskID,
		Status:          webhook.StatusCompleted,
		ResultURL:       resultURL,
		DurationSeconds: latency.Seconds(),
	})

	t.logger.Info("media generation completed",
		"provider", prov.ID,
		"result_url", resultURL,
		"duration_ms", latency.Milliseconds())
	return nil
}

// persistArtifacts streams inline artifacts to the media store, bounded
// by the batch concurrency gate, and returns the task's result URL.
func (t *MediaGenerationTask) persistArtifacts(ctx context.Context, result *provider.Result) (string, error) {
	if len(result.Artifacts) == 0 {
		return result.URL, nil
	}

	sem := semaphore.NewWeighted(t.deps.Config.BatchConcurrency)
	urls := make([]string, len(result.Artifacts))

	g, gctx := errgroup.WithContext(ctx)
	for i, artifact := range result.Artifacts {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			url, err := t.deps.Media.Save(gctx, t.taskID.String(), artifact.Name, artifact.Content)
			if err != nil {
				return fmt.Errorf("failed to save artifact %s: %w", artifact.Name, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if result.URL != "" {
		return result.URL, nil
	}
	return urls[0], nil
}

// failInfrastructure terminally fails the task for a non-provider,
// non-retryable infrastructure error (for example media storage being
// unavailable).
func (t *MediaGenerationTask) failInfrastructure(ctx context.Context, cause error) error {
	snap, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateFailed, StateUpdate{
		Error: cause.Error(),
	})
	if err != nil {
		t.logger.Error("failed to record infrastructure failure", "error", err)
		return fmt.Errorf("failed to record infrastructure failure: %w", err)
	}
	t.status = domain.TaskStateFailed

	t.emit(ctx, events.TypeGenerationFailed, events.GenerationFailed{
		TaskID:      t.taskID,
		Error:       cause.Error(),
		ErrorCode:   "infrastructure_error",
		IsRetryable: false,
		RetryCount:  snap.RetryCount,
		MaxRetries:  snap.MaxRetries,
		FailedAt:    time.Now(),
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID: t.taskID,
		Status: webhook.StatusFailed,
		Error:  cause.Error(),
	})

	return cause
}

// handleCancelled records the cancelled terminal state after the
// provider call observed cooperative cancellation.
func (t *MediaGenerationTask) handleCancelled(ctx context.Context) error {
	if err := t.deps.Store.Cancel(ctx, t.taskID); err != nil {
		t.logger.Error("failed to record cancelled state", "error", err)
		return fmt.Errorf("failed to record cancelled state: %w", err)
	}
	t.status = domain.TaskStateCancelled

	now := time.Now()
	t.emit(ctx, events.TypeGenerationCancelled, events.GenerationCancelled{
		TaskID:      t.taskID,
		CancelledAt: now,
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID: t.taskID,
		Status: webhook.StatusCancelled,
		Error:  "cancelled",
	})

	t.logger.Info("media generation cancelled")
	return nil
}

// handleFailure classifies the failed outcome, reports provider-level
// faults to the health tracker, and either requeues the task with
// backoff or fails it terminally.
func (t *MediaGenerationTask) handleFailure(ctx context.Context, prov provider.Provider, mapping provider.ModelMapping, outcome provider.Outcome, snap *domain.GenerationTask) error {
	cause := outcome.Err
	if cause == nil {
		cause = errors.New("provider returned no result")
	}
	t.logger.Error("provider call failed",
		"provider", prov.ID,
		"error_code", outcome.Kind.String(),
		"error", cause)

	// Provider-level faults count against the provider's health whether
	// or not the individual task is retried. Health bookkeeping is
	// best-effort and must never change the task outcome.
	if outcome.Kind.ProviderFault() {
		state, quarantinedNow := t.deps.Health.RecordFailure(ctx, prov.ID, cause)
		if quarantinedNow && t.deps.Failover != nil {
			t.deps.Failover.FailOver(ctx, prov.ID, mapping.Capability, state.QuarantineReason)
		}
	}

	if outcome.Kind.Retryable() && snap.RetryCount < snap.MaxRetries {
		return t.requeueForRetry(ctx, outcome, cause, snap)
	}

	updated, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateFailed, StateUpdate{
		Error: cause.Error(),
	})
	if err != nil {
		t.logger.Error("failed to record failed state", "error", err)
		return fmt.Errorf("failed to record failed state: %w", err)
	}
	t.status = domain.TaskStateFailed

	t.emit(ctx, events.TypeGenerationFailed, events.GenerationFailed{
		TaskID:      t.taskID,
		Error:       cause.Error(),
		ErrorCode:   outcome.Kind.String(),
		IsRetryable: false,
		RetryCount:  updated.RetryCount,
		MaxRetries:  updated.MaxRetries,
		FailedAt:    time.Now(),
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID: t.taskID,
		Status: webhook.StatusFailed,
		Error:  cause.Error(),
	})

	return fmt.Errorf("media generation failed: %w", cause)
}

// requeueForRetry writes the task back to pending with an incremented
// retry count and announces when the next attempt may run. An external
// scheduler re-delivers the request at or after NextRetryAt.
func (t *MediaGenerationTask) requeueForRetry(ctx context.Context, outcome provider.Outcome, cause error, snap *domain.GenerationTask) error {
	delay := backoffDelay(t.deps.Config.RetryBaseDelay, t.deps.Config.RetryMaxDelay, snap.RetryCount)
	nextRetryAt := time.Now().Add(delay)
	errMsg := fmt.Sprintf("attempt %d failed (%s), retrying: %v", snap.RetryCount+1, outcome.Kind, cause)

	// Requeue passes through the failed state so the transition history
	// matches the task state machine.
	if _, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStateFailed, StateUpdate{
		Error: errMsg,
	}); err != nil {
		t.logger.Error("failed to record retryable failure", "error", err)
		return fmt.Errorf("failed to record retryable failure: %w", err)
	}
	updated, err := t.deps.Store.UpdateState(ctx, t.taskID, domain.TaskStatePending, StateUpdate{
		IncrementRetry: true,
	})
	if err != nil {
		t.logger.Error("failed to requeue task for retry", "error", err)
		return fmt.Errorf("failed to requeue task for retry: %w", err)
	}
	t.status = domain.TaskStatePending

	t.emit(ctx, events.TypeGenerationFailed, events.GenerationFailed{
		TaskID:      t.taskID,
		Error:       errMsg,
		ErrorCode:   outcome.Kind.String(),
		IsRetryable: true,
		RetryCount:  updated.RetryCount,
		MaxRetries:  updated.MaxRetries,
		NextRetryAt: &nextRetryAt,
		FailedAt:    time.Now(),
	})
	t.sendWebhook(ctx, webhook.Payload{
		TaskID: t.taskID,
		Status: webhook.StatusRetrying,
		Error:  errMsg,
	})

	t.logger.Info("task requeued for retry",
		"retry_count", updated.RetryCount,
		"max_retries", updated.MaxRetries,
		"next_retry_at", nextRetryAt)
	return nil
}

// Progress milestones used by the time-based estimate.
var progressMilestones = []int{10, 30, 50, 70, 90}

// reportProgress periodically estimates percent-complete from elapsed
// wall time against the milestone checkpoints, writes it to the task
// store and notifies observers. Estimation is best-effort and purely
// time-based; the reporter stops as soon as its context is cancelled,
// which happens the moment the provider call returns.
func (t *MediaGenerationTask) reportProgress(ctx context.Context, startedAt time.Time, estimatedSeconds int) {
	ticker := time.NewTicker(t.deps.Config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pct := estimateProgress(time.Since(startedAt), estimatedSeconds)
		if err := t.deps.Store.UpdateProgress(ctx, t.taskID, pct, "generation in progress"); err != nil {
			t.logger.Warn("failed to update task progress", "error", err)
			continue
		}

		t.emit(ctx, events.TypeGenerationProgress, events.GenerationProgress{
			TaskID:             t.taskID,
			ProgressPercentage: pct,
			Status:             string(domain.TaskStateProcessing),
			Message:            "generation in progress",
		})
		t.sendWebhook(ctx, webhook.Payload{
			TaskID:             t.taskID,
			Status:             webhook.StatusProcessing,
			ProgressPercentage: pct,
			Message:            "generation in progress",
		})
	}
}

// estimateProgress maps elapsed time to the highest milestone the task
// has plausibly reached. The estimate never claims completion.
func estimateProgress(elapsed time.Duration, estimatedSeconds int) int {
	if estimatedSeconds <= 0 {
		return progressMilestones[0]
	}

	fraction := elapsed.Seconds() / float64(estimatedSeconds)
	pct := progressMilestones[0]
	for _, m := range progressMilestones {
		if fraction*100 >= float64(m) {
			pct = m
		}
	}
	return pct
}

// backoffDelay computes base * 2^retryCount capped at max.
func backoffDelay(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = DefaultPipelineConfig().RetryBaseDelay
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// emit wraps a payload in an envelope and publishes it. Emission is
// best-effort: failures are logged, never propagated.
func (t *MediaGenerationTask) emit(ctx context.Context, eventType string, payload interface{}) {
	env, err := events.NewEnvelope(eventType, t.correlationID, payload)
	if err == nil {
		err = t.deps.Emitter.EmitEvent(ctx, env)
	}
	if err != nil {
		t.logger.Error("failed to emit lifecycle event",
			"event_type", eventType,
			"error", err)
	}
}

// sendWebhook delivers a payload to the caller's webhook URL, if one was
// supplied. Delivery failures are logged and never affect the task.
func (t *MediaGenerationTask) sendWebhook(ctx context.Context, payload webhook.Payload) {
	if t.deps.Webhooks == nil || t.req.WebhookURL == "" {
		return
	}
	if err := t.deps.Webhooks.Send(ctx, t.req.WebhookURL, t.req.WebhookHeaders, payload); err != nil {
		t.logger.Warn("webhook delivery failed",
			"webhook_url", t.req.WebhookURL,
			"status", payload.Status,
			"error", err)
	}
}
