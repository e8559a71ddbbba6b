// Package errs defines the error-kind taxonomy shared by every component.
// Components return wrapped sentinel errors; callers use
// errors.Is/errors.As to branch on kind instead of inspecting strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error independent of the concrete Go error type.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindTransient        Kind = "transient"
	KindOutputTooLong    Kind = "output_too_long"
	KindValidationFailed Kind = "validation_failed"
	KindFatal            Kind = "fatal"
)

// Sentinel base errors. Wrap with fmt.Errorf("...: %w", errs.InvalidInput)
// to add context while keeping errors.Is(err, errs.InvalidInput) true.
var (
	InvalidInput     = errors.New("invalid input")
	NotFound         = errors.New("not found")
	Conflict         = errors.New("conflict")
	Transient        = errors.New("transient error")
	OutputTooLong    = errors.New("llm output exceeded length cap")
	ValidationFailed = errors.New("validation failed")
	Fatal            = errors.New("fatal error")
)

// Error carries a Kind plus an arbitrary message and wrapped cause, so
// callers that want the kind back via errors.As can do so without string
// matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error matching against the package-level sentinels so that
// errors.Is(New(KindNotFound, ...), errs.NotFound) succeeds.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindInvalidInput:
		return target == InvalidInput
	case KindNotFound:
		return target == NotFound
	case KindConflict:
		return target == Conflict
	case KindTransient:
		return target == Transient
	case KindOutputTooLong:
		return target == OutputTooLong
	case KindValidationFailed:
		return target == ValidationFailed
	case KindFatal:
		return target == Fatal
	}
	return false
}

// New builds a kind-tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kind-tagged error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, if it (or something it wraps) is an
// *Error. Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
