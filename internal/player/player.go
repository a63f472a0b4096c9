// Package player implements the playback session kind and its method set.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tausound/server/internal/dispatch"
	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/media"
	"github.com/tausound/server/internal/session"
	"github.com/tausound/server/internal/slot"
)

// Event method names on the player channel.
const (
	EventOpened   = "openPlayerCompleted"
	EventClosed   = "closePlayerCompleted"
	EventStarted  = "startPlayerCompleted"
	EventStopped  = "stopPlayerCompleted"
	EventPaused   = "pausePlayerCompleted"
	EventResumed  = "resumePlayerCompleted"
	EventProgress = "updateProgress"
	EventFinished = "audioPlayerFinishedPlaying"
	EventNeedData = "needSomeFood"
	EventError    = "error"
)

// resetTimeout bounds how long a reset waits for a session's executor
// before releasing it anyway.
const resetTimeout = 2 * time.Second

// Deps are the collaborators every player session shares.
type Deps struct {
	Engine   engine.Engine
	Emitter  session.Emitter
	Registry *slot.Registry[*Player]
	Media    *media.Policy
	Logger   *slog.Logger
	// LogLevel and SubscriptionInterval seed each new session.
	LogLevel             engine.LogLevel
	SubscriptionInterval time.Duration
}

// Player is one playback session.
type Player struct {
	*session.Base
	deps *Deps

	// Owned by the executor.
	handle    engine.Player
	request   engine.PlayRequest
	streaming bool
	duration  time.Duration
}

var _ dispatch.Session = (*Player)(nil)

// New constructs an unopened player bound to slotNo.
func New(slotNo int, deps *Deps) *Player {
	p := &Player{deps: deps}
	p.Base = session.NewBase(session.Options{
		Kind:    session.PlayerKind,
		Slot:    slotNo,
		Emitter: deps.Emitter,
		Release: func(n int) {
			if deps.Registry != nil {
				deps.Registry.Release(n, p)
			}
		},
		Logger:   deps.Logger,
		LogLevel: deps.LogLevel,
	})
	return p
}

// Open allocates the engine player.
func (p *Player) Open(ctx context.Context, raw json.RawMessage) error {
	args, err := dispatch.Decode[session.OpenArgs](raw)
	if err != nil {
		return err
	}
	_, err = p.Run(ctx, func() (any, error) {
		err := p.Transition(session.OpOpen, func() error {
			h, err := p.deps.Engine.NewPlayer(listener{p})
			if err != nil {
				return apperrors.EngineInit(err)
			}
			if p.deps.SubscriptionInterval > 0 {
				h.SetSubscriptionInterval(p.deps.SubscriptionInterval)
			}
			p.handle = h
			return nil
		})
		if err != nil {
			return nil, err
		}
		if args.LogLevel != nil {
			p.SetLogLevel(*args.LogLevel)
		}
		p.Emit(EventOpened, true, nil)
		return nil, nil
	})
	return err
}

// Reset tears the session down without reporting to the caller. It never
// fails; a session whose engine call hangs is released after resetTimeout.
func (p *Player) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	_, err := p.Run(ctx, func() (any, error) {
		p.teardown()
		return nil, nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
		p.Logger().Warn("reset did not complete", "error", err)
	}
	p.Release()
}

// close runs on the executor: implicit stop, release the handle, report
// Closed while the slot is still bound, then free it.
func (p *Player) close() error {
	if err := p.Transition(session.OpClose, func() error {
		p.teardown()
		return nil
	}); err != nil {
		return err
	}
	p.Emit(EventClosed, true, nil)
	p.Release()
	return nil
}

// teardown stops any running playback and releases the engine handle. Engine
// errors are logged; the handle is dropped regardless.
func (p *Player) teardown() {
	if p.handle == nil {
		return
	}
	if p.Machine().Running() {
		if err := p.handle.Stop(); err != nil {
			p.Logger().Warn("implicit stop failed", "error", err)
		}
	}
	if err := p.handle.Release(); err != nil {
		p.Logger().Warn("engine release failed", "error", err)
	}
	p.handle = nil
}

// engineFailure converts a synchronous engine error. A fatal failure
// destroys the session.
func (p *Player) engineFailure(op string, err error) error {
	e := apperrors.Engine(op, err)
	if errors.Is(err, engine.ErrFatal) {
		p.destroy(e)
	}
	return e
}

// destroy reports err, drops the engine handle and frees the slot. Must run
// on the executor.
func (p *Player) destroy(err error) {
	p.Logger().Error("engine failure is unrecoverable, closing session", "error", err)
	p.teardown()
	p.Machine().Set(session.Closed)
	p.Emit(EventError, false, err.Error())
	p.Release()
}

// failed handles an asynchronous engine failure on the executor.
func (p *Player) failed(err error) {
	if errors.Is(err, engine.ErrFatal) {
		p.destroy(err)
		return
	}
	p.Logger().Warn("playback failed", "error", err)
	if p.Machine().Running() {
		p.Machine().Set(session.Stopped)
	}
	p.Emit(EventError, false, err.Error())
}

// Progress is the payload of updateProgress and the result of getProgress.
type Progress struct {
	Position int64 `json:"position"`
	Duration int64 `json:"duration"`
}

func progressOf(pos, dur time.Duration) Progress {
	return Progress{Position: session.Millis(pos), Duration: session.Millis(dur)}
}

// listener relays engine callbacks onto the session executor.
type listener struct{ p *Player }

func (l listener) Progress(pos, dur time.Duration) {
	l.p.Post(func() {
		if l.p.State() == session.Active {
			l.p.Emit(EventProgress, true, progressOf(pos, dur))
		}
	})
}

func (l listener) Finished() {
	l.p.Post(func() {
		if !l.p.Machine().Running() {
			return
		}
		l.p.Machine().Set(session.Stopped)
		l.p.Emit(EventFinished, true, nil)
	})
}

func (l listener) Failed(err error) {
	l.p.Post(func() { l.p.failed(err) })
}

func (l listener) NeedsData(n int) {
	l.p.Post(func() {
		if l.p.State() == session.Active && l.p.streaming {
			l.p.Emit(EventNeedData, true, n)
		}
	})
}

func (l listener) Log(level engine.LogLevel, msg string) {
	l.p.Post(func() { l.p.Log(level, msg) })
}
