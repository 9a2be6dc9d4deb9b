// Package faults provides structured error classification for dependency
// calls and protocol handling. Every failure that crosses a component
// boundary is tagged with a Kind, which drives retry decisions, circuit
// accounting and the stable error codes surfaced on the wire.
package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure for retry and reporting purposes.
type Kind int8

const (
	// KindTransient represents retryable dependency failures
	// (network errors, timeouts, 5xx responses, 429 rate limiting).
	KindTransient Kind = iota
	// KindTerminal represents non-retryable dependency failures
	// (validation, auth, not-found, malformed responses).
	KindTerminal
	// KindBudgetExhausted represents an admission denial. Never retried;
	// surfaced to the model/user as data.
	KindBudgetExhausted
	// KindCapabilityNotFound represents a dispatch-time unknown capability.
	KindCapabilityNotFound
	// KindProtocolViolation represents a duplicate or uncorrelated
	// user-input response. Rejected without side effects.
	KindProtocolViolation
	// KindCheckpoint represents a storage collaborator failure after
	// retries are exhausted. Turn-fatal.
	KindCheckpoint
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindBudgetExhausted:
		return "budget_exhausted"
	case KindCapabilityNotFound:
		return "capability_not_found"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindCheckpoint:
		return "checkpoint_failure"
	default:
		return "unknown"
	}
}

// Code returns the stable error code carried on the wire for this kind.
func (k Kind) Code() string {
	switch k {
	case KindTransient:
		return "transient_dependency"
	case KindTerminal:
		return "terminal_dependency"
	default:
		return k.String()
	}
}

// Retryable reports whether failures of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Fault is a classified error with optional HTTP status metadata.
type Fault struct {
	Err        error  // wrapped underlying error, may be nil
	Message    string // human-readable message
	Kind       Kind
	StatusCode int // HTTP status if the failure came from an HTTP dependency
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (f *Fault) Unwrap() error {
	return f.Err
}

// New creates a fault of the given kind with a message.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Newf creates a fault with a formatted message.
func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault wrapping an underlying error.
func Wrap(kind Kind, err error, message string) *Fault {
	return &Fault{Kind: kind, Err: err, Message: message}
}

// FromStatusCode classifies an HTTP status into a fault.
func FromStatusCode(code int, message string) *Fault {
	kind := KindTerminal
	if code == 429 || code >= 500 {
		kind = KindTransient
	}
	return &Fault{Kind: kind, Message: message, StatusCode: code}
}

// KindOf returns the classified kind of an error. Errors without an explicit
// classification fall back to string heuristics.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return classify(err)
}

// IsRetryable reports whether the error should be retried. Context
// cancellation is never retryable regardless of classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err).Retryable()
}

// classify applies string heuristics for errors produced by dependencies that
// do not return classified faults. Unknown errors default to terminal so a
// misbehaving dependency is not hammered with retries.
func classify(err error) Kind {
	s := err.Error()

	if strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection") ||
		strings.Contains(s, "network") ||
		strings.Contains(s, "temporary") ||
		strings.Contains(s, "unavailable") {
		return KindTransient
	}

	if strings.Contains(s, "rate") || strings.Contains(s, "429") {
		return KindTransient
	}

	if strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "504") {
		return KindTransient
	}

	return KindTerminal
}
