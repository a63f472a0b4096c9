// Package dispatch routes caller commands to the session in the addressed
// slot and turns every outcome into a structured Result.
package dispatch

import (
	"encoding/json"
	"errors"

	apperrors "github.com/tausound/server/internal/errors"
)

// MethodResetPlugin tears down every session of a kind. It carries no slot.
const MethodResetPlugin = "resetPlugin"

// Command is one caller request on a kind's channel.
type Command struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Slot   *int            `json:"slotNo,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Status classifies a Result.
type Status string

const (
	StatusOK             Status = "ok"
	StatusError          Status = "error"
	StatusNotImplemented Status = "notImplemented"
)

// Result is the synchronous answer to a Command.
type Result struct {
	Status Status
	Value  any
	Err    error
}

// OK builds a successful result.
func OK(v any) Result {
	return Result{Status: StatusOK, Value: v}
}

// Failure builds an error result. Unknown methods get their own status so
// callers can tell them apart from operational failures.
func Failure(err error) Result {
	if errors.Is(err, apperrors.ErrNotImplemented) {
		return Result{Status: StatusNotImplemented, Err: err}
	}
	return Result{Status: StatusError, Err: err}
}

// Code returns the error code of a failed result, or "" on success.
func (r Result) Code() apperrors.Code {
	if r.Err == nil {
		return ""
	}
	return apperrors.CodeOf(r.Err)
}
