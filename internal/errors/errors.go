// Package errors provides the coded error taxonomy shared by the registry,
// the dispatcher and the session kinds. Every failure that reaches a caller
// carries one of the Code values below so the transport can report it as a
// structured result instead of an opaque string.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown marks an error that did not originate from this package.
	CodeUnknown Code = "UNKNOWN"

	CodeInvalidSlot            Code = "INVALID_SLOT"
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeEngineInit             Code = "ENGINE_INIT_ERROR"
	CodeEngine                 Code = "ENGINE_ERROR"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeAlreadyActive          Code = "ALREADY_ACTIVE"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeNotImplemented         Code = "NOT_IMPLEMENTED"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message returned to the caller
	Metadata map[string]string // Additional context (slot, field, state)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidSlot            = &Error{Code: CodeInvalidSlot}
	ErrSessionNotFound        = &Error{Code: CodeSessionNotFound}
	ErrEngineInit             = &Error{Code: CodeEngineInit}
	ErrEngine                 = &Error{Code: CodeEngine}
	ErrInvalidStateTransition = &Error{Code: CodeInvalidStateTransition}
	ErrAlreadyActive          = &Error{Code: CodeAlreadyActive}
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument}
	ErrNotImplemented         = &Error{Code: CodeNotImplemented}
)

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithMetadata returns a copy of e with key=value added to its metadata.
func (e *Error) WithMetadata(key, value string) *Error {
	c := *e
	c.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	c.Metadata[key] = value
	return &c
}

// CodeOf extracts the Code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// InvalidSlot reports a slot index outside [0, length].
func InvalidSlot(slot, length int) *Error {
	return New(CodeInvalidSlot, "slot %d is out of range (registry length %d)", slot, length).
		WithMetadata("slot", fmt.Sprint(slot))
}

// SlotInUse reports an attempt to bind a session onto an occupied slot.
func SlotInUse(slot int) *Error {
	return New(CodeInvalidSlot, "slot %d already holds an open session", slot).
		WithMetadata("slot", fmt.Sprint(slot))
}

// SessionNotFound reports a slot with no live session.
func SessionNotFound(slot int) *Error {
	return New(CodeSessionNotFound, "no open session in slot %d", slot).
		WithMetadata("slot", fmt.Sprint(slot))
}

// InvalidArgument reports a missing or malformed command argument.
func InvalidArgument(field, format string, args ...any) *Error {
	return New(CodeInvalidArgument, "%s: %s", field, fmt.Sprintf(format, args...)).
		WithMetadata("field", field)
}

// InvalidTransition reports an operation that is illegal in the current state.
func InvalidTransition(op, state string) *Error {
	return New(CodeInvalidStateTransition, "cannot %s while %s", op, state).
		WithMetadata("state", state)
}

// AlreadyActive reports a start on a session that is already active.
func AlreadyActive(slot int) *Error {
	return New(CodeAlreadyActive, "session in slot %d is already active", slot).
		WithMetadata("slot", fmt.Sprint(slot))
}

// EngineInit wraps an engine allocation failure.
func EngineInit(cause error) *Error {
	return Wrap(CodeEngineInit, cause, "engine could not allocate an instance")
}

// Engine wraps an engine call failure for op.
func Engine(op string, cause error) *Error {
	return Wrap(CodeEngine, cause, "engine %s failed", op)
}

// NotImplemented reports an unknown method.
func NotImplemented(method string) *Error {
	return New(CodeNotImplemented, "method %q is not implemented", method)
}
