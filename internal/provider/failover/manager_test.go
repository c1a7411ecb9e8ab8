package failover

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/provider"
)

// staticCandidates backs CandidateSource with a fixed slice.
type staticCandidates []provider.Provider

func (s staticCandidates) Providers() []provider.Provider {
	return s
}

// captureEmitter records envelopes without a bus.
type captureEmitter struct {
	mu     sync.Mutex
	events []*events.Envelope
}

func (e *captureEmitter) EmitEvent(ctx context.Context, event *events.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerFailOver(t *testing.T) {
	t.Parallel()

	candidates := staticCandidates{
		imageProvider("prov-a", true),
		imageProvider("prov-b", true),
	}

	t.Run("records active failover and emits event", func(t *testing.T) {
		emitter := &captureEmitter{}
		m := NewManager(candidates, nil, emitter, testLogger())

		state := m.FailOver(context.Background(), "prov-a", provider.CapabilityImage, "quarantined")

		assert.Equal(t, domain.FailoverStatusActive, state.Status)
		assert.Equal(t, "prov-a", state.FailedProviderID)
		assert.Equal(t, "prov-b", state.FailoverProviderID)
		assert.Equal(t, "quarantined", state.Reason)

		require.Len(t, emitter.events, 1)
		assert.Equal(t, events.TypeProviderFailoverInitiated, emitter.events[0].Type)
		var payload events.ProviderFailoverInitiated
		require.NoError(t, emitter.events[0].UnmarshalPayload(&payload))
		assert.Equal(t, "prov-a", payload.FailedProviderID)
		assert.Equal(t, "prov-b", payload.FailoverProviderID)

		last, ok := m.Last("prov-a")
		require.True(t, ok)
		assert.Equal(t, state, last)
	})

	t.Run("no alternative is recorded but not announced", func(t *testing.T) {
		emitter := &captureEmitter{}
		m := NewManager(staticCandidates{imageProvider("prov-a", true)}, nil, emitter, testLogger())

		state := m.FailOver(context.Background(), "prov-a", provider.CapabilityImage, "quarantined")

		assert.Equal(t, domain.FailoverStatusNoAlternative, state.Status)
		assert.Empty(t, state.FailoverProviderID)
		assert.Empty(t, emitter.events)

		last, ok := m.Last("prov-a")
		require.True(t, ok)
		assert.Equal(t, domain.FailoverStatusNoAlternative, last.Status)
	})

	t.Run("next failover overwrites the recorded state", func(t *testing.T) {
		m := NewManager(candidates, nil, nil, testLogger())

		first := m.FailOver(context.Background(), "prov-a", provider.CapabilityImage, "first")
		second := m.FailOver(context.Background(), "prov-a", provider.CapabilityImage, "second")

		last, ok := m.Last("prov-a")
		require.True(t, ok)
		assert.Equal(t, second, last)
		assert.NotEqual(t, first.Reason, last.Reason)
	})

	t.Run("unknown provider has no recorded state", func(t *testing.T) {
		m := NewManager(candidates, nil, nil, testLogger())

		_, ok := m.Last("prov-x")
		assert.False(t, ok)
	})
}
