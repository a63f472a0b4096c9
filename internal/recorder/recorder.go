// Package recorder implements the capture session kind and its method set.
package recorder

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

// Event method names on the recorder channel.
const (
	EventOpened   = "openRecorderCompleted"
	EventClosed   = "closeRecorderCompleted"
	EventStarted  = "startRecorderCompleted"
	EventStopped  = "stopRecorderCompleted"
	EventPaused   = "pauseRecorderCompleted"
	EventResumed  = "resumeRecorderCompleted"
	EventProgress = "updateRecorderProgress"
	EventData     = "recordingData"
	EventError    = "error"
)

const resetTimeout = 2 * time.Second

// Deps are the collaborators every recorder session shares.
type Deps struct {
	Engine               engine.Engine
	Emitter              session.Emitter
	Registry             *slot.Registry[*Recorder]
	Media                *media.Policy
	Logger               *slog.Logger
	LogLevel             engine.LogLevel
	SubscriptionInterval time.Duration
}

// Recorder is one capture session.
type Recorder struct {
	*session.Base
	deps *Deps

	handle engine.Recorder
	path   string
}

var _ dispatch.Session = (*Recorder)(nil)

// New constructs an unopened recorder bound to slotNo.
func New(slotNo int, deps *Deps) *Recorder {
	r := &Recorder{deps: deps}
	r.Base = session.NewBase(session.Options{
		Kind:    session.RecorderKind,
		Slot:    slotNo,
		Emitter: deps.Emitter,
		Release: func(n int) {
			if deps.Registry != nil {
				deps.Registry.Release(n, r)
			}
		},
		Logger:   deps.Logger,
		LogLevel: deps.LogLevel,
	})
	return r
}

// Open allocates the engine recorder.
func (r *Recorder) Open(ctx context.Context, raw json.RawMessage) error {
	args, err := dispatch.Decode[session.OpenArgs](raw)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, func() (any, error) {
		err := r.Transition(session.OpOpen, func() error {
			h, err := r.deps.Engine.NewRecorder(listener{r})
			if err != nil {
				return apperrors.EngineInit(err)
			}
			if r.deps.SubscriptionInterval > 0 {
				h.SetSubscriptionInterval(r.deps.SubscriptionInterval)
			}
			r.handle = h
			return nil
		})
		if err != nil {
			return nil, err
		}
		if args.LogLevel != nil {
			r.SetLogLevel(*args.LogLevel)
		}
		r.Emit(EventOpened, true, nil)
		return nil, nil
	})
	return err
}

// Reset tears the session down without reporting to the caller.
func (r *Recorder) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	_, err := r.Run(ctx, func() (any, error) {
		r.teardown()
		return nil, nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
		r.Logger().Warn("reset did not complete", "error", err)
	}
	r.Release()
}

func (r *Recorder) close() error {
	if err := r.Transition(session.OpClose, func() error {
		r.teardown()
		return nil
	}); err != nil {
		return err
	}
	r.Emit(EventClosed, true, nil)
	r.Release()
	return nil
}

// teardown finalises any recording in progress and releases the handle.
func (r *Recorder) teardown() {
	if r.handle == nil {
		return
	}
	if r.Machine().Running() {
		if _, err := r.handle.Stop(); err != nil {
			r.Logger().Warn("implicit stop failed", "error", err)
		}
	}
	if err := r.handle.Release(); err != nil {
		r.Logger().Warn("engine release failed", "error", err)
	}
	r.handle = nil
}

func (r *Recorder) engineFailure(op string, err error) error {
	e := apperrors.Engine(op, err)
	if errors.Is(err, engine.ErrFatal) {
		r.destroy(e)
	}
	return e
}

func (r *Recorder) destroy(err error) {
	r.Logger().Error("engine failure is unrecoverable, closing session", "error", err)
	r.teardown()
	r.Machine().Set(session.Closed)
	r.Emit(EventError, false, err.Error())
	r.Release()
}

func (r *Recorder) failed(err error) {
	if errors.Is(err, engine.ErrFatal) {
		r.destroy(err)
		return
	}
	r.Logger().Warn("recording failed", "error", err)
	if r.Machine().Running() {
		r.Machine().Set(session.Stopped)
	}
	r.Emit(EventError, false, err.Error())
}

// Progress is the payload of updateRecorderProgress.
type Progress struct {
	Duration    int64   `json:"duration"`
	DBPeakLevel float64 `json:"dbPeakLevel"`
}

type listener struct{ r *Recorder }

func (l listener) Progress(d time.Duration, dbPeak float64) {
	l.r.Post(func() {
		if l.r.State() == session.Active {
			l.r.Emit(EventProgress, true, Progress{Duration: session.Millis(d), DBPeakLevel: dbPeak})
		}
	})
}

func (l listener) Data(chunk []byte) {
	l.r.Post(func() {
		if l.r.State() == session.Active {
			l.r.Emit(EventData, true, chunk)
		}
	})
}

func (l listener) Failed(err error) {
	l.r.Post(func() { l.r.failed(err) })
}

func (l listener) Log(level engine.LogLevel, msg string) {
	l.r.Post(func() { l.r.Log(level, msg) })
}
