// Package apperr defines the typed error kinds shared across the execution
// core, mirroring the wire error envelope in the public API contract.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the external API contract expects.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindPolicy      Kind = "POLICY"
	KindNotFound    Kind = "NOT_FOUND"
	KindDuplicate   Kind = "DUPLICATE"
	KindConflict    Kind = "CONFLICT"
	KindTimeout     Kind = "TIMEOUT"
	KindCircuitOpen Kind = "CIRCUIT_OPEN"
	KindRateLimited Kind = "RATE_LIMITED"
	KindTransient   Kind = "TRANSIENT"
	KindInternal    Kind = "INTERNAL"
)

// Error is the typed error value returned by every fallible operation in
// this module. Only the HTTP boundary (pkg/api) renders it to JSON.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying cause as its unwrap target.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an Error with a formatted message, carrying cause.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", kindLabel(e.Kind), e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (cause: %s)", msg, e.Cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func kindLabel(k Kind) string {
	if k == "" {
		return "internal"
	}
	return string(k)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// untyped errors so callers always get a valid wire kind.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

// Retryable reports whether a step handler should retry locally without
// bubbling the error to the engine's terminal-failure path.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
