// Package mocks provides function-field test doubles for the
// collaborators of the generation pipeline.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/provider"
	"github.com/phrazzld/relay-api/internal/service/keys"
	"github.com/phrazzld/relay-api/internal/webhook"
)

// MockGenerator implements provider.Generator with a configurable
// function field.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req provider.Request) provider.Outcome

	mu    sync.Mutex
	calls int
}

func (m *MockGenerator) Generate(ctx context.Context, req provider.Request) provider.Outcome {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return provider.Success(&provider.Result{URL: "https://example.com/out", Units: 1})
}

// Calls returns how many times Generate was invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockResolver implements task.ProviderResolver.
type MockResolver struct {
	ResolveFunc func(model string) (provider.Provider, provider.Generator, provider.ModelMapping, error)
}

func (m *MockResolver) Resolve(model string) (provider.Provider, provider.Generator, provider.ModelMapping, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(model)
	}
	return provider.Provider{}, nil, provider.ModelMapping{}, domain.ErrUnknownModel
}

// MockKeyValidator implements keys.Validator.
type MockKeyValidator struct {
	ValidateFunc func(ctx context.Context, virtualKey string) (keys.Claims, error)
}

func (m *MockKeyValidator) Validate(ctx context.Context, virtualKey string) (keys.Claims, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, virtualKey)
	}
	return keys.Claims{KeyID: virtualKey}, nil
}

// MockHealthReporter implements task.HealthReporter and records every
// observation it receives.
type MockHealthReporter struct {
	RecordFailureFunc func(ctx context.Context, providerID string, err error) (domain.ProviderHealthState, bool)

	mu        sync.Mutex
	Successes []string
	Failures  []string
	Latencies map[string]time.Duration
}

func (m *MockHealthReporter) RecordSuccess(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Successes = append(m.Successes, providerID)
}

func (m *MockHealthReporter) RecordFailure(ctx context.Context, providerID string, err error) (domain.ProviderHealthState, bool) {
	m.mu.Lock()
	m.Failures = append(m.Failures, providerID)
	m.mu.Unlock()

	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, providerID, err)
	}
	return domain.ProviderHealthState{ProviderID: providerID}, false
}

func (m *MockHealthReporter) RecordLatency(providerID string, observed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Latencies == nil {
		m.Latencies = make(map[string]time.Duration)
	}
	m.Latencies[providerID] = observed
}

// MockFailoverHandler implements task.FailoverHandler.
type MockFailoverHandler struct {
	FailOverFunc func(ctx context.Context, failedProviderID string, capability provider.Capability, reason string) domain.FailoverState

	mu    sync.Mutex
	Calls []string
}

func (m *MockFailoverHandler) FailOver(ctx context.Context, failedProviderID string, capability provider.Capability, reason string) domain.FailoverState {
	m.mu.Lock()
	m.Calls = append(m.Calls, failedProviderID)
	m.mu.Unlock()

	if m.FailOverFunc != nil {
		return m.FailOverFunc(ctx, failedProviderID, capability, reason)
	}
	return domain.FailoverState{
		FailedProviderID: failedProviderID,
		Status:           domain.FailoverStatusNoAlternative,
	}
}

// MockWebhookSender implements webhook.Sender and records every payload.
type MockWebhookSender struct {
	SendFunc func(ctx context.Context, url string, headers map[string]string, payload webhook.Payload) error

	mu       sync.Mutex
	Payloads []webhook.Payload
}

func (m *MockWebhookSender) Send(ctx context.Context, url string, headers map[string]string, payload webhook.Payload) error {
	m.mu.Lock()
	m.Payloads = append(m.Payloads, payload)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, url, headers, payload)
	}
	return nil
}

// Sent returns a copy of the payloads delivered so far.
func (m *MockWebhookSender) Sent() []webhook.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]webhook.Payload, len(m.Payloads))
	copy(out, m.Payloads)
	return out
}

// CaptureEmitter implements events.Emitter and records every envelope.
type CaptureEmitter struct {
	EmitFunc func(ctx context.Context, event *events.Envelope) error

	mu     sync.Mutex
	Events []*events.Envelope
}

func (e *CaptureEmitter) EmitEvent(ctx context.Context, event *events.Envelope) error {
	e.mu.Lock()
	e.Events = append(e.Events, event)
	e.mu.Unlock()

	if e.EmitFunc != nil {
		return e.EmitFunc(ctx, event)
	}
	return nil
}

// ByType returns the captured envelopes of the given event type.
func (e *CaptureEmitter) ByType(eventType string) []*events.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*events.Envelope
	for _, env := range e.Events {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}
