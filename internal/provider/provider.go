package provider

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Capability identifies a kind of generation a provider can perform.
type Capability string

// Supported capabilities.
const (
	CapabilityVideo Capability = "video"
	CapabilityImage Capability = "image"
)

// Provider describes one upstream generation backend.
type Provider struct {
	ID           string
	Name         string
	Enabled      bool
	Capabilities []Capability
}

// Supports reports whether the provider advertises the given capability.
func (p Provider) Supports(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Request carries the parameters of one generation call.
type Request struct {
	TaskID     uuid.UUID
	Model      string
	Prompt     string
	Parameters map[string]any
}

// Artifact is one piece of generated media returned inline by a provider.
// Content is streamed to the storage collaborator rather than buffered,
// so large payloads never live wholly in memory.
type Artifact struct {
	Name    string
	Content io.Reader
}

// Result is the success payload of a generation call. A provider returns
// either a URL to hosted output, inline artifacts, or both.
type Result struct {
	URL       string
	Artifacts []Artifact
	Units     int
}

// Generator is the capability interface every provider adapter
// implements. The orchestrator depends only on this contract; there is no
// runtime inspection of adapter types. Adapters must observe ctx and
// return promptly when it is cancelled.
type Generator interface {
	// Generate runs one generation call to completion and reports the
	// outcome as an explicit result type rather than a bare error.
	Generate(ctx context.Context, req Request) Outcome
}
