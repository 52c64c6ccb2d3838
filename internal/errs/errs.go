// Package errs defines the error taxonomy shared across the matching
// service. Handlers map kinds to HTTP status codes; the engine uses kinds
// to decide whether a failed transaction may be retried.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput marks malformed or missing fields (a caller bug).
	KindInvalidInput
	// KindValidationFailed marks a business rule violation and carries the
	// full list of violated rules, never just the first.
	KindValidationFailed
	// KindNotFound marks an absent order or match.
	KindNotFound
	// KindConflict marks duplicate creation, a lost fill race, or a
	// settlement confirmation with a mismatched hash.
	KindConflict
	// KindUnauthorized marks an actor that does not own the resource or a
	// signature that does not verify.
	KindUnauthorized
	// KindExternalDependency marks an unavailable store, publisher or
	// verifier. Surfaced, never silently retried forever.
	KindExternalDependency
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindValidationFailed:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindExternalDependency:
		return "external_dependency_failure"
	}
	return "unknown"
}

// Error is the one error type the core returns across package boundaries.
type Error struct {
	kind      Kind
	msg       string
	rules     []string
	retryable bool
	err       error
}

func (e *Error) Error() string {
	if len(e.rules) > 0 {
		return e.msg + ": " + strings.Join(e.rules, "; ")
	}
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Rules returns the violated business rules, if any.
func (e *Error) Rules() []string { return e.rules }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// Validation builds a ValidationFailed error carrying every violated rule.
func Validation(rules []string) *Error {
	return &Error{kind: KindValidationFailed, msg: "validation failed", rules: rules}
}

// RetryableConflict marks a conflict the engine may retry a bounded number
// of times before surfacing it (serialization failures, deadlocks).
func RetryableConflict(err error, format string, args ...any) *Error {
	return &Error{kind: KindConflict, msg: fmt.Sprintf(format, args...), err: err, retryable: true}
}

// KindOf extracts the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// RulesOf extracts the violated rule list of a ValidationFailed error.
func RulesOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.rules
	}
	return nil
}

// IsRetryable reports whether err is a conflict worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.retryable
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
