package failover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/provider"
)

// CandidateSource supplies the providers eligible as failover targets.
type CandidateSource interface {
	Providers() []provider.Provider
}

// Manager runs failover decisions and records their outcomes. The most
// recent FailoverState per failed provider is retained and overwritten
// by the next failover for that provider.
type Manager struct {
	candidates CandidateSource
	healthView HealthView
	emitter    events.Emitter
	logger     *slog.Logger

	mu     sync.RWMutex
	states map[string]domain.FailoverState
}

// NewManager creates a Manager.
func NewManager(candidates CandidateSource, healthView HealthView, emitter events.Emitter, logger *slog.Logger) *Manager {
	return &Manager{
		candidates: candidates,
		healthView: healthView,
		emitter:    emitter,
		logger:     logger.With("component", "failover_manager"),
		states:     make(map[string]domain.FailoverState),
	}
}

// FailOver selects an alternative for a failed provider, records the
// resulting FailoverState and, when an alternative was found, emits
// ProviderFailoverInitiated. NoAlternative is a valid terminal outcome.
func (m *Manager) FailOver(ctx context.Context, failedProviderID string, capability provider.Capability, reason string) domain.FailoverState {
	altID, found := SelectAlternative(failedProviderID, capability, m.candidates.Providers(), m.healthView)

	state := domain.FailoverState{
		FailedProviderID: failedProviderID,
		InitiatedAt:      time.Now(),
		Reason:           reason,
		Status:           domain.FailoverStatusNoAlternative,
	}
	if found {
		state.FailoverProviderID = altID
		state.Status = domain.FailoverStatusActive
	}

	m.mu.Lock()
	m.states[failedProviderID] = state
	m.mu.Unlock()

	if !found {
		m.logger.Warn("no failover alternative available",
			"failed_provider_id", failedProviderID,
			"capability", capability,
			"reason", reason)
		return state
	}

	m.logger.Info("failover initiated",
		"failed_provider_id", failedProviderID,
		"failover_provider_id", altID,
		"capability", capability)

	if m.emitter != nil {
		env, err := events.NewEnvelope(events.TypeProviderFailoverInitiated, "", events.ProviderFailoverInitiated{
			FailedProviderID:   failedProviderID,
			FailoverProviderID: altID,
			InitiatedAt:        state.InitiatedAt,
		})
		if err == nil {
			err = m.emitter.EmitEvent(ctx, env)
		}
		if err != nil {
			// Best-effort: the failover decision stands even if the
			// notification fails.
			m.logger.Error("failed to emit failover event",
				"failed_provider_id", failedProviderID,
				"error", err)
		}
	}

	return state
}

// Last returns the most recent FailoverState recorded for a failed
// provider.
func (m *Manager) Last(failedProviderID string) (domain.FailoverState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[failedProviderID]
	return state, ok
}
