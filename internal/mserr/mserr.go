// Package mserr defines the structured error envelope every fallible
// core operation returns, per the error taxonomy in the specification.
package mserr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy the core exposes to any caller.
type Kind string

const (
	KindConfig            Kind = "config"
	KindIO                Kind = "io"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindSkillNotFound     Kind = "skill_not_found"
	KindBinaryUnavailable Kind = "binary_unavailable"
	KindMiningFailed      Kind = "mining_failed"
	KindApprovalRequired  Kind = "approval_required"
	KindLocked            Kind = "locked"
	KindNotImplemented    Kind = "not_implemented"
	KindPathPolicy        Kind = "path_policy"
	KindIntegrity         Kind = "integrity"
	KindCycle             Kind = "cycle"
)

// Error is the single structured error type returned by the core.
// It carries a Kind for programmatic dispatch, a one-line human message,
// an optional wrapped cause, and a free-form context bag for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext returns a copy of e with the given context fields merged in.
func (e *Error) WithContext(fields map[string]any) *Error {
	next := *e
	next.Context = make(map[string]any, len(e.Context)+len(fields))
	for k, v := range e.Context {
		next.Context[k] = v
	}
	for k, v := range fields {
		next.Context[k] = v
	}
	return &next
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, mserr.New(mserr.KindLocked, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// LockedError is the context shape for KindLocked errors: the holder
// field names who currently owns the global mutation lock.
type LockedError struct {
	PID       int
	Hostname  string
	Acquired  string
}

// NewLocked builds a KindLocked error carrying the current holder record.
func NewLocked(holder LockedError) *Error {
	return New(KindLocked, "store is locked by another process").WithContext(map[string]any{
		"holder_pid":      holder.PID,
		"holder_host":     holder.Hostname,
		"holder_acquired": holder.Acquired,
	})
}

// PathPolicyViolation names the specific way a path failed policy checks.
type PathPolicyViolation string

const (
	ViolationTraversalAttempt PathPolicyViolation = "traversal_attempt"
	ViolationEscapesRoot      PathPolicyViolation = "escapes_root"
	ViolationSymlinkEscape    PathPolicyViolation = "symlink_escape"
	ViolationInvalidComponent PathPolicyViolation = "invalid_component"
	ViolationOutsideRoot      PathPolicyViolation = "outside_root"
)

// NewPathPolicy builds a KindPathPolicy error for the given violation.
func NewPathPolicy(violation PathPolicyViolation, message string) *Error {
	return New(KindPathPolicy, message).WithContext(map[string]any{"violation": string(violation)})
}
