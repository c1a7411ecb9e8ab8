package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/events"
)

// Config holds the tunables of the health score policy. The policy must
// be monotonic: more failures or latency never increase the score, and
// the score is always clamped to [0, 1].
type Config struct {
	// ConsecutiveFailureLimit is the failure streak that triggers quarantine.
	ConsecutiveFailureLimit int

	// MinHealthScore is the score below which a provider is quarantined.
	MinHealthScore float64

	// SuccessNudge is added to the score on each success.
	SuccessNudge float64

	// FailurePenalty is subtracted from the score on each failure.
	FailurePenalty float64

	// LatencyPenalty scales the score reduction per unit of latency
	// over the baseline.
	LatencyPenalty float64

	// LatencyBaseline is the latency considered normal for a provider call.
	LatencyBaseline time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailureLimit: 5,
		MinHealthScore:          0.2,
		SuccessNudge:            0.1,
		FailurePenalty:          0.2,
		LatencyPenalty:          0.05,
		LatencyBaseline:         30 * time.Second,
	}
}

// MappingDisabler is the routing-layer collaborator asked to stop
// offering a quarantined provider for new work.
type MappingDisabler interface {
	DisableMappings(providerID string) int
}

// Tracker maintains one mutable health record per provider. Records are
// created lazily on first observation and updated atomically per
// provider: each record carries its own lock so concurrent reports for
// different providers never contend.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record

	cfg      Config
	emitter  events.Emitter
	mappings MappingDisabler
	logger   *slog.Logger
}

type record struct {
	mu    sync.Mutex
	state domain.ProviderHealthState
}

// NewTracker creates a Tracker. The emitter and mappings collaborators
// may be nil in tests; quarantine side effects are skipped when absent.
func NewTracker(cfg Config, emitter events.Emitter, mappings MappingDisabler, logger *slog.Logger) *Tracker {
	if cfg.ConsecutiveFailureLimit <= 0 {
		cfg.ConsecutiveFailureLimit = DefaultConfig().ConsecutiveFailureLimit
	}
	return &Tracker{
		records:  make(map[string]*record),
		cfg:      cfg,
		emitter:  emitter,
		mappings: mappings,
		logger:   logger.With("component", "health_tracker"),
	}
}

// getRecord returns the record for a provider, creating it on first
// observation with a full health score.
func (t *Tracker) getRecord(providerID, providerName string) *record {
	t.mu.RLock()
	rec, ok := t.records[providerID]
	t.mu.RUnlock()
	if ok {
		return rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[providerID]; ok {
		return rec
	}
	rec = &record{state: domain.ProviderHealthState{
		ProviderID:   providerID,
		ProviderName: providerName,
		HealthScore:  1.0,
	}}
	t.records[providerID] = rec
	return rec
}

// RecordSuccess resets the provider's failure streak and nudges its
// health score upward.
func (t *Tracker) RecordSuccess(providerID string) {
	rec := t.getRecord(providerID, providerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.state.ConsecutiveFailures = 0
	rec.state.TotalSuccesses++
	rec.state.HealthScore = clamp(rec.state.HealthScore + t.cfg.SuccessNudge)
}

// RecordFailure degrades the provider's health and, when the failure
// streak or score crosses the configured threshold, quarantines it.
// Returns the updated snapshot and whether this call caused the
// quarantine transition.
func (t *Tracker) RecordFailure(ctx context.Context, providerID string, err error) (domain.ProviderHealthState, bool) {
	rec := t.getRecord(providerID, providerID)

	rec.mu.Lock()
	now := time.Now()
	rec.state.ConsecutiveFailures++
	rec.state.TotalFailures++
	rec.state.LastFailureAt = &now
	rec.state.HealthScore = clamp(rec.state.HealthScore - t.cfg.FailurePenalty)

	quarantinedNow := false
	if !rec.state.IsQuarantined &&
		(rec.state.ConsecutiveFailures >= t.cfg.ConsecutiveFailureLimit ||
			rec.state.HealthScore < t.cfg.MinHealthScore) {
		reason := "consecutive failure threshold exceeded"
		if err != nil {
			reason = "consecutive failures: " + err.Error()
		}
		t.quarantineLocked(rec, reason, now)
		quarantinedNow = true
	}
	snapshot := rec.state
	rec.mu.Unlock()

	if quarantinedNow {
		t.afterQuarantine(ctx, snapshot)
	}
	return snapshot, quarantinedNow
}

// RecordLatency degrades the score of a reachable but slow provider in
// proportion to how far the observed latency exceeds the baseline.
func (t *Tracker) RecordLatency(providerID string, observed time.Duration) {
	if t.cfg.LatencyBaseline <= 0 || observed <= t.cfg.LatencyBaseline {
		return
	}

	rec := t.getRecord(providerID, providerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	over := float64(observed-t.cfg.LatencyBaseline) / float64(t.cfg.LatencyBaseline)
	rec.state.HealthScore = clamp(rec.state.HealthScore - t.cfg.LatencyPenalty*over)
}

// Quarantine removes a provider from routing eligibility. It is
// idempotent: quarantining an already quarantined provider does not emit
// a second event.
func (t *Tracker) Quarantine(ctx context.Context, providerID, reason string) {
	rec := t.getRecord(providerID, providerID)

	rec.mu.Lock()
	if rec.state.IsQuarantined {
		rec.mu.Unlock()
		return
	}
	t.quarantineLocked(rec, reason, time.Now())
	snapshot := rec.state
	rec.mu.Unlock()

	t.afterQuarantine(ctx, snapshot)
}

// quarantineLocked flips the quarantine flags; rec.mu must be held.
func (t *Tracker) quarantineLocked(rec *record, reason string, now time.Time) {
	rec.state.IsQuarantined = true
	rec.state.QuarantinedAt = &now
	rec.state.QuarantineReason = reason
}

// afterQuarantine performs the side effects of a quarantine transition:
// emitting ProviderQuarantined and disabling the provider's model
// mappings. Both are best-effort; failures here must not affect the
// primary task outcome.
func (t *Tracker) afterQuarantine(ctx context.Context, state domain.ProviderHealthState) {
	t.logger.Warn("provider quarantined",
		"provider_id", state.ProviderID,
		"reason", state.QuarantineReason,
		"consecutive_failures", state.ConsecutiveFailures,
		"health_score", state.HealthScore)

	if t.mappings != nil {
		disabled := t.mappings.DisableMappings(state.ProviderID)
		t.logger.Info("disabled model mappings for quarantined provider",
			"provider_id", state.ProviderID,
			"mappings_disabled", disabled)
	}

	if t.emitter != nil {
		env, err := events.NewEnvelope(events.TypeProviderQuarantined, "", events.ProviderQuarantined{
			ProviderID:    state.ProviderID,
			ProviderName:  state.ProviderName,
			Reason:        state.QuarantineReason,
			QuarantinedAt: *state.QuarantinedAt,
		})
		if err == nil {
			err = t.emitter.EmitEvent(ctx, env)
		}
		if err != nil {
			t.logger.Error("failed to emit quarantine event",
				"provider_id", state.ProviderID,
				"error", err)
		}
	}
}

// Throttle marks a provider as degraded and records the fraction of
// traffic it should keep. Level is clamped to [0, 1].
func (t *Tracker) Throttle(providerID string, level float64) {
	rec := t.getRecord(providerID, providerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.state.IsThrottled = true
	rec.state.ThrottleLevel = clamp(level)
}

// Reset restores a provider to a fresh, healthy record. Used by
// operator tooling after a quarantined provider recovers.
func (t *Tracker) Reset(providerID string) {
	rec := t.getRecord(providerID, providerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	name := rec.state.ProviderName
	rec.state = domain.ProviderHealthState{
		ProviderID:   providerID,
		ProviderName: name,
		HealthScore:  1.0,
	}
}

// Snapshot returns a copy of the provider's health state. The second
// return value is false if the provider has never been observed.
func (t *Tracker) Snapshot(providerID string) (domain.ProviderHealthState, bool) {
	t.mu.RLock()
	rec, ok := t.records[providerID]
	t.mu.RUnlock()
	if !ok {
		return domain.ProviderHealthState{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

// SnapshotAll returns copies of every known provider health record.
func (t *Tracker) SnapshotAll() []domain.ProviderHealthState {
	t.mu.RLock()
	recs := make([]*record, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	t.mu.RUnlock()

	out := make([]domain.ProviderHealthState, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.state)
		rec.mu.Unlock()
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
