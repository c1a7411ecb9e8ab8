// Package provider defines the boundary between the generation pipeline
// and upstream generation backends.
//
// Every backend is wrapped in an adapter implementing the Generator
// capability interface and reporting call results as an explicit Outcome
// with a structured ErrorKind, so retry and health decisions never depend
// on parsing error prose outside the adapter boundary.
package provider
