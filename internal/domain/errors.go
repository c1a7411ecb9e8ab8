// Package domain defines the core entities of the generation pipeline and
// the errors shared across its components.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a request fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a task state update would
	// violate the task state machine.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrUnknownModel is returned when no provider mapping exists for a
	// requested model.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnsupportedCapability is returned when the resolved provider does
	// not advertise the capability the request needs.
	ErrUnsupportedCapability = errors.New("provider does not support requested capability")

	// ErrUnauthorized is returned when a virtual key fails validation.
	ErrUnauthorized = errors.New("unauthorized virtual key")
)
