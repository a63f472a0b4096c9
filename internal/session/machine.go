package session

import (
	"sync"

	apperrors "github.com/tausound/server/internal/errors"
)

// Op names a caller-issued lifecycle operation.
type Op string

const (
	OpOpen   Op = "open"
	OpStart  Op = "start"
	OpPause  Op = "pause"
	OpResume Op = "resume"
	OpStop   Op = "stop"
	OpClose  Op = "close"
)

// Machine is the kind-agnostic lifecycle shared by players and recorders:
//
//	Created -open-> Opened -start-> Active <-pause/resume-> Paused
//	Active/Paused -stop-> Stopped -start-> Active
//	any non-closed -close-> Closed
//
// Transitions are applied only from the owning session's executor. State is
// safe to read from any goroutine.
type Machine struct {
	slot  int
	mu    sync.RWMutex
	state State
}

// NewMachine returns a machine in Created for the given slot.
func NewMachine(slot int) *Machine {
	return &Machine{slot: slot, state: Created}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set forces the state. Used once a transition's work has succeeded.
// Closed is terminal: work that finishes after the session was released
// cannot move it back out.
func (m *Machine) Set(s State) {
	m.mu.Lock()
	if m.state != Closed {
		m.state = s
	}
	m.mu.Unlock()
}

// Check reports whether op is legal from the current state and returns the
// state the session lands in when the operation's work succeeds.
func (m *Machine) Check(op Op) (State, error) {
	cur := m.State()
	if cur == Closed {
		return cur, apperrors.SessionNotFound(m.slot)
	}

	switch op {
	case OpOpen:
		if cur == Created {
			return Opened, nil
		}
	case OpStart:
		switch cur {
		case Opened, Stopped:
			return Active, nil
		case Active:
			return cur, apperrors.AlreadyActive(m.slot)
		}
	case OpPause:
		if cur == Active {
			return Paused, nil
		}
	case OpResume:
		if cur == Paused {
			return Active, nil
		}
	case OpStop:
		switch cur {
		case Active, Paused:
			return Stopped, nil
		case Opened, Stopped:
			// Nothing is running; stopping again is a no-op.
			return cur, nil
		}
	case OpClose:
		return Closed, nil
	}
	return cur, apperrors.InvalidTransition(string(op), cur.String())
}

// Running reports whether the engine has an operation in flight.
func (m *Machine) Running() bool {
	s := m.State()
	return s == Active || s == Paused
}
