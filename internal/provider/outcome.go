package provider

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind classifies a failed generation call at the provider-adapter
// boundary. Retry decisions are made on this enum, never by re-parsing
// error prose downstream.
type ErrorKind int

// Error kinds, roughly ordered from caller fault to provider fault.
const (
	// KindNone means the call succeeded.
	KindNone ErrorKind = iota

	// KindValidation covers unknown models, unauthorized keys and
	// unsupported capabilities. Never retried.
	KindValidation

	// KindTimeout covers deadline expiry on the provider call.
	KindTimeout

	// KindConnection covers transport-level failures reaching the provider.
	KindConnection

	// KindRateLimited covers provider-side throttling responses.
	KindRateLimited

	// KindUnavailable covers "temporarily unavailable" style responses.
	KindUnavailable

	// KindProvider covers everything else the provider reports; treated as
	// permanent for the individual task but still counted against the
	// provider's health.
	KindProvider

	// KindCancelled means the call observed cooperative cancellation.
	KindCancelled
)

// String returns the error code used on failure events and webhooks.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation_error"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_error"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindProvider:
		return "provider_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried with
// backoff.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// ProviderFault reports whether failures of this kind count against the
// provider's health record. Validation errors and cancellations are
// caller- or operator-initiated and say nothing about the provider.
func (k ErrorKind) ProviderFault() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited, KindUnavailable, KindProvider:
		return true
	default:
		return false
	}
}

// Outcome is the explicit result of a generation call: exactly one of
// Result (on success) or Kind+Err (on failure) is meaningful.
type Outcome struct {
	Result *Result
	Kind   ErrorKind
	Err    error
}

// Succeeded reports whether the call produced a result.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindNone && o.Result != nil
}

// Success builds a successful Outcome.
func Success(result *Result) Outcome {
	return Outcome{Result: result, Kind: KindNone}
}

// Failure builds a failed Outcome of the given kind.
func Failure(kind ErrorKind, err error) Outcome {
	return Outcome{Kind: kind, Err: err}
}

// Substrings that mark an error message as transient. Matching prose is
// inherently fragile, which is why this list lives only here, at the
// adapter boundary; everything past the adapter works with ErrorKind.
var transientSubstrings = []struct {
	kind    ErrorKind
	needles []string
}{
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindRateLimited, []string{"rate limit", "too many requests", "quota exceeded"}},
	{KindUnavailable, []string{"temporarily unavailable", "service unavailable", "overloaded"}},
	{KindConnection, []string{"connection refused", "connection reset", "no such host", "broken pipe"}},
}

// ClassifyError maps a raw transport error into an ErrorKind. Adapters
// whose underlying client surfaces structured errors should classify
// directly and skip this helper.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	for _, group := range transientSubstrings {
		for _, needle := range group.needles {
			if strings.Contains(msg, needle) {
				return group.kind
			}
		}
	}

	return KindProvider
}
