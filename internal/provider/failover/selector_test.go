package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/provider"
)

// mapHealthView backs HealthView with a fixed map.
type mapHealthView map[string]domain.ProviderHealthState

func (v mapHealthView) Snapshot(providerID string) (domain.ProviderHealthState, bool) {
	state, ok := v[providerID]
	return state, ok
}

func imageProvider(id string, enabled bool) provider.Provider {
	return provider.Provider{
		ID:           id,
		Name:         id,
		Enabled:      enabled,
		Capabilities: []provider.Capability{provider.CapabilityImage},
	}
}

func TestSelectAlternative(t *testing.T) {
	t.Parallel()

	candidates := []provider.Provider{
		imageProvider("prov-a", true),
		imageProvider("prov-b", true),
		imageProvider("prov-c", true),
	}

	t.Run("never returns the failed provider", func(t *testing.T) {
		for i := 0; i < len(candidates); i++ {
			failed := candidates[i].ID
			id, ok := SelectAlternative(failed, provider.CapabilityImage, candidates, nil)
			require.True(t, ok)
			assert.NotEqual(t, failed, id)
		}
	})

	t.Run("highest health score wins", func(t *testing.T) {
		health := mapHealthView{
			"prov-b": {ProviderID: "prov-b", HealthScore: 0.4},
			"prov-c": {ProviderID: "prov-c", HealthScore: 0.9},
		}

		id, ok := SelectAlternative("prov-a", provider.CapabilityImage, candidates, health)
		require.True(t, ok)
		assert.Equal(t, "prov-c", id)
	})

	t.Run("unobserved providers count as fully healthy", func(t *testing.T) {
		health := mapHealthView{
			"prov-c": {ProviderID: "prov-c", HealthScore: 0.9},
		}

		// prov-b has never been observed, so it scores 1.0 and beats
		// prov-c.
		id, ok := SelectAlternative("prov-a", provider.CapabilityImage, candidates, health)
		require.True(t, ok)
		assert.Equal(t, "prov-b", id)
	})

	t.Run("ties break to the lowest provider id", func(t *testing.T) {
		id, ok := SelectAlternative("prov-c", provider.CapabilityImage, candidates, nil)
		require.True(t, ok)
		assert.Equal(t, "prov-a", id)
	})

	t.Run("quarantined providers are excluded", func(t *testing.T) {
		health := mapHealthView{
			"prov-b": {ProviderID: "prov-b", HealthScore: 1.0, IsQuarantined: true},
			"prov-c": {ProviderID: "prov-c", HealthScore: 0.1},
		}

		id, ok := SelectAlternative("prov-a", provider.CapabilityImage, candidates, health)
		require.True(t, ok)
		assert.Equal(t, "prov-c", id)
	})

	t.Run("disabled providers are excluded", func(t *testing.T) {
		withDisabled := []provider.Provider{
			imageProvider("prov-a", true),
			imageProvider("prov-b", false),
		}

		_, ok := SelectAlternative("prov-a", provider.CapabilityImage, withDisabled, nil)
		assert.False(t, ok)
	})

	t.Run("capability mismatch excludes the provider", func(t *testing.T) {
		video := provider.Provider{
			ID:           "prov-v",
			Enabled:      true,
			Capabilities: []provider.Capability{provider.CapabilityVideo},
		}

		_, ok := SelectAlternative("prov-a", provider.CapabilityImage, []provider.Provider{imageProvider("prov-a", true), video}, nil)
		assert.False(t, ok)

		id, ok := SelectAlternative("prov-a", provider.CapabilityVideo, []provider.Provider{imageProvider("prov-a", true), video}, nil)
		require.True(t, ok)
		assert.Equal(t, "prov-v", id)
	})

	t.Run("no candidates at all", func(t *testing.T) {
		_, ok := SelectAlternative("prov-a", provider.CapabilityImage, nil, nil)
		assert.False(t, ok)
	})
}
