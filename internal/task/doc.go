// Package task manages the asynchronous generation pipeline: the task
// store and its state machine, the cancellation registry, the worker
// pool, and the orchestration of one generation job from request to
// terminal state. Long-running provider calls never block event
// handling; each inbound event is handled by one worker invocation.
package task
