package failover

import (
	"sort"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/provider"
)

// HealthView is the read-only slice of the health tracker the selector
// needs. Providers never observed by the tracker are treated as healthy.
type HealthView interface {
	Snapshot(providerID string) (domain.ProviderHealthState, bool)
}

// SelectAlternative picks the best healthy substitute for a failed
// provider. Candidates are filtered to those that are not the failed
// provider, support the capability, are enabled, and are not
// quarantined; among survivors the highest health score wins, with ties
// broken by lowest provider id so the choice is deterministic. The
// second return value is false when no survivor exists.
//
// Selection never mutates state; recording the FailoverState and
// emitting ProviderFailoverInitiated is the caller's job.
func SelectAlternative(
	failedProviderID string,
	capability provider.Capability,
	candidates []provider.Provider,
	healthView HealthView,
) (string, bool) {
	type scored struct {
		id    string
		score float64
	}

	survivors := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == failedProviderID || !c.Enabled || !c.Supports(capability) {
			continue
		}

		score := 1.0
		if healthView != nil {
			if state, ok := healthView.Snapshot(c.ID); ok {
				if state.IsQuarantined {
					continue
				}
				score = state.HealthScore
			}
		}
		survivors = append(survivors, scored{id: c.ID, score: score})
	}

	if len(survivors) == 0 {
		return "", false
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].score != survivors[j].score {
			return survivors[i].score > survivors[j].score
		}
		return survivors[i].id < survivors[j].id
	})
	return survivors[0].id, true
}
