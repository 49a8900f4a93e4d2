package sakti

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the coordinator's error taxonomy (spec.md §7).
type ErrorKind int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorKind = iota
	// DuplicateRequest indicates an idempotency hit; non-retryable by the same key.
	DuplicateRequest
	// LockUnavailable indicates the lock could not be acquired within waitMs; retryable.
	LockUnavailable
	// ValidationFailed indicates a pre-commit error; retryable after remediation.
	ValidationFailed
	// ParticipantCommitFailed indicates one participant's commit failed, triggering compensation.
	ParticipantCommitFailed
	// CompensationFailed indicates at least one inverse did not apply; surfaces as FAILED.
	CompensationFailed
	// DegradedMode indicates a KV outage caused lock/idempotency bypass; a warning, not a failure.
	DegradedMode
	// InvariantViolation indicates an illegal phase transition or similar programming bug.
	InvariantViolation
)

func (k ErrorKind) String() string {
	switch k {
	case DuplicateRequest:
		return "DUPLICATE_REQUEST"
	case LockUnavailable:
		return "LOCK_UNAVAILABLE"
	case ValidationFailed:
		return "VALIDATION_FAILED"
	case ParticipantCommitFailed:
		return "PARTICIPANT_COMMIT_FAILED"
	case CompensationFailed:
		return "COMPENSATION_FAILED"
	case DegradedMode:
		return "DEGRADED_MODE"
	case InvariantViolation:
		return "INVARIANT_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// Error is the coordinator's structured error type: a taxonomy kind, a
// wrapped cause, and optional caller-facing user data (e.g. the offending
// transaction ID).
type Error struct {
	Kind     ErrorKind
	Err      error
	UserData any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a taxonomy error wrapping cause, with optional user data
// attached for caller diagnostics.
func NewError(kind ErrorKind, cause error, userData any) *Error {
	return &Error{Kind: kind, Err: cause, UserData: userData}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error,
// otherwise returns Unknown.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}
