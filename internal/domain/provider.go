package domain

import "time"

// ProviderHealthState is the per-provider mutable health record maintained
// by the health tracker. Records are created lazily on first observation
// and are never deleted, only reset.
type ProviderHealthState struct {
	ProviderID          string     `json:"provider_id"`
	ProviderName        string     `json:"provider_name"`
	HealthScore         float64    `json:"health_score"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	IsQuarantined       bool       `json:"is_quarantined"`
	QuarantinedAt       *time.Time `json:"quarantined_at,omitempty"`
	QuarantineReason    string     `json:"quarantine_reason,omitempty"`
	IsThrottled         bool       `json:"is_throttled"`
	ThrottleLevel       float64    `json:"throttle_level,omitempty"`
	TotalSuccesses      int        `json:"total_successes"`
	TotalFailures       int        `json:"total_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

// FailoverStatus describes the outcome of a failover decision.
type FailoverStatus string

// Possible failover outcomes. NoAlternative is a valid terminal outcome:
// every candidate was the failed provider itself, quarantined, disabled,
// or lacked the required capability.
const (
	FailoverStatusActive        FailoverStatus = "active"
	FailoverStatusNoAlternative FailoverStatus = "no_alternative"
)

// FailoverState records one failover event for a failed provider. The
// most recent state per failed provider is retained and overwritten on
// the next failover for that provider.
type FailoverState struct {
	FailedProviderID   string         `json:"failed_provider_id"`
	FailoverProviderID string         `json:"failover_provider_id,omitempty"`
	InitiatedAt        time.Time      `json:"initiated_at"`
	Reason             string         `json:"reason"`
	Status             FailoverStatus `json:"status"`
}
