package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
)

// Emitter delivers session events to the caller. Implemented by
// event.Emitter; the session only knows its slot, the emitter resolves the
// current state at emission time.
type Emitter interface {
	Emit(slot int, method string, success bool, arg any)
	Log(slot int, level engine.LogLevel, msg string)
}

// Options configures a Base.
type Options struct {
	Kind     Kind
	Slot     int
	Emitter  Emitter
	Release  func(slot int) // frees the slot in the owning registry
	Logger   *slog.Logger
	LogLevel engine.LogLevel
}

// Base is the plumbing shared by player and recorder sessions: slot
// identity, the lifecycle machine, the executor every state change runs on,
// and event emission.
type Base struct {
	kind     Kind
	slot     int
	machine  *Machine
	exec     *Executor
	emitter  Emitter
	release  func(int)
	logger   *slog.Logger
	logLevel engine.LogLevel
}

// NewBase builds the shared session plumbing and starts its executor.
func NewBase(o Options) *Base {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("kind", o.Kind.String(), "slot", o.Slot)

	b := &Base{
		kind:     o.Kind,
		slot:     o.Slot,
		machine:  NewMachine(o.Slot),
		emitter:  o.Emitter,
		release:  o.Release,
		logger:   logger,
		logLevel: o.LogLevel,
	}
	b.exec = NewExecutor(func(r any) {
		b.logger.Error("session callback panicked", "panic", fmt.Sprint(r))
	})
	return b
}

// Kind returns the session namespace.
func (b *Base) Kind() Kind { return b.kind }

// Slot returns the immutable slot index.
func (b *Base) Slot() int { return b.slot }

// State returns the current lifecycle state.
func (b *Base) State() State { return b.machine.State() }

// Machine exposes the lifecycle for kind-specific checks.
func (b *Base) Machine() *Machine { return b.machine }

// Logger returns the session-scoped process logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Done is closed once the session's executor has exited.
func (b *Base) Done() <-chan struct{} { return b.exec.Done() }

// Run executes fn on the session executor and returns its result. A closed
// session answers SessionNotFound without running fn.
func (b *Base) Run(ctx context.Context, fn func() (any, error)) (any, error) {
	var (
		value any
		err   error
	)
	runErr := b.exec.Run(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.New(apperrors.CodeEngine, "operation panicked: %v", r)
			}
		}()
		if b.machine.State() == Closed {
			err = apperrors.SessionNotFound(b.slot)
			return
		}
		value, err = fn()
	})
	if runErr != nil {
		if errors.Is(runErr, ErrExecutorClosed) {
			return nil, apperrors.SessionNotFound(b.slot)
		}
		return nil, runErr
	}
	return value, err
}

// Post hands an engine callback to the executor. Callbacks arriving after
// the session closed are discarded.
func (b *Base) Post(fn func()) {
	accepted := b.exec.Post(func() {
		if b.machine.State() == Closed {
			return
		}
		fn()
	})
	if !accepted {
		b.logger.Debug("discarding engine callback after close")
	}
}

// Transition checks op against the machine, runs work, and applies the
// target state only when work succeeds. Must run on the executor.
func (b *Base) Transition(op Op, work func() error) error {
	target, err := b.machine.Check(op)
	if err != nil {
		return err
	}
	if work != nil {
		if err := work(); err != nil {
			return err
		}
	}
	b.machine.Set(target)
	return nil
}

// Emit reports an event carrying the session's current state.
func (b *Base) Emit(method string, success bool, arg any) {
	if b.emitter == nil {
		return
	}
	b.emitter.Emit(b.slot, method, success, arg)
}

// Log forwards an engine diagnostic when it passes the session's level.
func (b *Base) Log(level engine.LogLevel, msg string) {
	b.logger.Log(context.Background(), level.Slog(), msg, "source", "engine")
	if b.emitter == nil || !b.logLevel.Enabled(level) {
		return
	}
	b.emitter.Log(b.slot, level, msg)
}

// LogLevel returns the diagnostic threshold.
func (b *Base) LogLevel() engine.LogLevel { return b.logLevel }

// SetLogLevel changes the diagnostic threshold. Must run on the executor.
func (b *Base) SetLogLevel(l engine.LogLevel) { b.logLevel = l }

// Release moves the session to Closed, frees its slot and stops the
// executor. Events emitted before Release still observe the session.
func (b *Base) Release() {
	b.machine.Set(Closed)
	if b.release != nil {
		b.release(b.slot)
	}
	b.exec.Close()
}
