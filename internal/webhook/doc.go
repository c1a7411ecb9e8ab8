// Package webhook defines the payload shape and delivery mechanism for
// caller-supplied callback URLs. Only the payload contract and call
// sites matter to the pipeline; delivery is always best-effort.
package webhook
