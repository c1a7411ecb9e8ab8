// Package events defines the lifecycle event contracts of the generation
// pipeline.
//
// Events travel on a message bus whose transport is out of scope here;
// only the payload shapes and the Emitter/Handler interfaces matter to the
// pipeline. Every event is wrapped in an Envelope carrying a correlation
// id so consumers can tie lifecycle events back to the originating
// request.
//
// The primary components are:
// - Envelope: transport wrapper with event type, correlation id and payload
// - GenerationRequested ... ProviderFailoverInitiated: typed payloads
// - Handler: interface for components that can handle events
// - Emitter: interface for components that can emit events
package events
