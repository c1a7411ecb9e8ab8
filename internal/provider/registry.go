package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/relay-api/internal/domain"
)

// ModelMapping routes one public model name to a provider and the
// capability that model exercises.
type ModelMapping struct {
	Model            string
	ProviderID       string
	Capability       Capability
	EstimatedSeconds int
	Disabled         bool
}

// Registry holds the known providers, their adapters and the
// model-to-provider mappings the routing layer consults. It is the
// external collaborator the health tracker asks to disable mappings when
// a provider is quarantined.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	generators map[string]Generator
	mappings   map[string]ModelMapping
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		generators: make(map[string]Generator),
		mappings:   make(map[string]ModelMapping),
	}
}

// RegisterProvider adds a provider and its adapter to the registry,
// replacing any previous registration under the same id.
func (r *Registry) RegisterProvider(p Provider, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	r.generators[p.ID] = g
}

// AddMapping registers a model-to-provider mapping.
func (r *Registry) AddMapping(m ModelMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[m.Model] = m
}

// Resolve looks up the provider, adapter and mapping for a model. It
// fails with domain.ErrUnknownModel when no enabled mapping exists and
// with domain.ErrUnsupportedCapability when the mapped provider does not
// advertise the mapping's capability.
func (r *Registry) Resolve(model string) (Provider, Generator, ModelMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[model]
	if !ok || m.Disabled {
		return Provider{}, nil, ModelMapping{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}

	p, ok := r.providers[m.ProviderID]
	if !ok || !p.Enabled {
		return Provider{}, nil, ModelMapping{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}

	if !p.Supports(m.Capability) {
		return Provider{}, nil, ModelMapping{}, fmt.Errorf("%w: provider %s, capability %s",
			domain.ErrUnsupportedCapability, p.ID, m.Capability)
	}

	return p, r.generators[m.ProviderID], m, nil
}

// Generator returns the adapter registered for a provider id.
func (r *Registry) Generator(providerID string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[providerID]
	return g, ok
}

// Providers returns all registered providers sorted by id, so callers
// that rank or iterate get a deterministic order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DisableMappings marks every mapping routed to the given provider as
// disabled so the routing layer stops offering it for new work. Returns
// the number of mappings disabled.
func (r *Registry) DisableMappings(providerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for model, m := range r.mappings {
		if m.ProviderID == providerID && !m.Disabled {
			m.Disabled = true
			r.mappings[model] = m
			count++
		}
	}
	return count
}
