// Package event builds the asynchronous notifications a session sends back
// to its caller and hands them to the kind's channel.
package event

import (
	"log/slog"

	"github.com/tausound/server/internal/engine"
	"github.com/tausound/server/internal/session"
)

// MethodLog is the method name of diagnostic passthrough events.
const MethodLog = "log"

// Event is one caller-directed notification.
type Event struct {
	Method  string           `json:"method"`
	Slot    int              `json:"slotNo"`
	State   session.State    `json:"state"`
	Arg     any              `json:"arg,omitempty"`
	Success bool             `json:"success"`
	Level   *engine.LogLevel `json:"level,omitempty"`
	Msg     string           `json:"msg,omitempty"`
}

// Sink delivers events over a kind's channel.
type Sink interface {
	Deliver(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Deliver(ev Event) error { return f(ev) }

// StateLookup reports the current state of the session in slot.
type StateLookup func(slot int) (session.State, bool)

// Emitter stamps events with the emitting session's current state and
// delivers them. Delivery failures are logged and never reach the session.
type Emitter struct {
	kind   session.Kind
	sink   Sink
	lookup StateLookup
	logger *slog.Logger
}

func NewEmitter(kind session.Kind, sink Sink, lookup StateLookup, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		kind:   kind,
		sink:   sink,
		lookup: lookup,
		logger: logger.With("component", "emitter", "kind", kind.String()),
	}
}

// Emit reports method for slot. Events for a slot that no longer holds a
// session are discarded.
func (e *Emitter) Emit(slot int, method string, success bool, arg any) {
	state, ok := e.lookup(slot)
	if !ok {
		e.logger.Debug("discarding event for freed slot", "slot", slot, "method", method)
		return
	}
	e.deliver(Event{
		Method:  method,
		Slot:    slot,
		State:   state,
		Arg:     arg,
		Success: success,
	})
}

// Log reports an engine diagnostic for slot.
func (e *Emitter) Log(slot int, level engine.LogLevel, msg string) {
	state, ok := e.lookup(slot)
	if !ok {
		return
	}
	lvl := level
	e.deliver(Event{
		Method:  MethodLog,
		Slot:    slot,
		State:   state,
		Success: true,
		Level:   &lvl,
		Msg:     msg,
	})
}

func (e *Emitter) deliver(ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Deliver(ev); err != nil {
		e.logger.Warn("event delivery failed", "slot", ev.Slot, "method", ev.Method, "error", err)
	}
}
