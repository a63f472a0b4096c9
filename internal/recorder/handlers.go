package recorder

import (
	"context"

	"github.com/tausound/server/internal/dispatch"
	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/media"
	"github.com/tausound/server/internal/session"
)

// Namespace returns the recorder method set.
func Namespace(deps *Deps) dispatch.Namespace[*Recorder] {
	return dispatch.Namespace[*Recorder]{
		Kind:       session.RecorderKind.String(),
		OpenMethod: "openRecorder",
		New:        func(n int) *Recorder { return New(n, deps) },
		Handlers: map[string]dispatch.Handler[*Recorder]{
			"closeRecorder":           dispatch.With(closeRecorder),
			"startRecorder":           dispatch.With(startRecorder),
			"stopRecorder":            dispatch.With(stopRecorder),
			"pauseRecorder":           dispatch.With(pauseRecorder),
			"resumeRecorder":          dispatch.With(resumeRecorder),
			"isEncoderSupported":      dispatch.With(isEncoderSupported),
			"getRecordURL":            dispatch.With(getRecordURL),
			"deleteRecord":            dispatch.With(deleteRecord),
			"setAudioFocus":           dispatch.With(setAudioFocus),
			"setSubscriptionDuration": dispatch.With(setSubscriptionDuration),
			"setLogLevel":             dispatch.With(setLogLevel),
		},
	}
}

func closeRecorder(ctx context.Context, r *Recorder, _ dispatch.NoArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		return nil, r.close()
	})
}

// StartArgs describes a recording. An empty path records to a fresh file
// under the record directory.
type StartArgs struct {
	Path        string       `json:"path"`
	Codec       engine.Codec `json:"codec"`
	SampleRate  int          `json:"sampleRate"`
	NumChannels int          `json:"numChannels"`
	BitRate     int          `json:"bitRate"`
	ToStream    bool         `json:"toStream"`
	AudioSource int          `json:"audioSource"`
}

func (a *StartArgs) Validate() error {
	if a.SampleRate < 0 {
		return apperrors.InvalidArgument("sampleRate", "must not be negative")
	}
	if a.NumChannels < 0 || a.NumChannels > 2 {
		return apperrors.InvalidArgument("numChannels", "must be 1 or 2")
	}
	if a.BitRate < 0 {
		return apperrors.InvalidArgument("bitRate", "must not be negative")
	}
	return nil
}

func startRecorder(ctx context.Context, r *Recorder, a StartArgs) (any, error) {
	if a.Codec != engine.DefaultCodec && !r.deps.Engine.EncoderSupported(a.Codec) {
		return nil, apperrors.InvalidArgument("codec", "%s cannot be encoded", a.Codec)
	}
	policy := r.deps.Media
	if policy == nil {
		policy = &media.Policy{}
	}
	var (
		path string
		err  error
	)
	if a.Path == "" {
		path, err = policy.NewRecordingPath(a.Codec)
	} else {
		path, err = policy.Resolve("path", a.Path)
	}
	if err != nil {
		return nil, err
	}
	req := engine.RecordRequest{
		Path:        path,
		Codec:       a.Codec,
		SampleRate:  a.SampleRate,
		NumChannels: a.NumChannels,
		BitRate:     a.BitRate,
		ToStream:    a.ToStream,
	}

	return r.Run(ctx, func() (any, error) {
		err := r.Transition(session.OpStart, func() error {
			if err := r.handle.Start(req); err != nil {
				return r.engineFailure("start", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		r.path = path
		r.Emit(EventStarted, true, policy.Mask(path))
		return policy.Mask(path), nil
	})
}

func stopRecorder(ctx context.Context, r *Recorder, _ dispatch.NoArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		wasRunning := r.Machine().Running()
		err := r.Transition(session.OpStop, func() error {
			if !wasRunning {
				return nil
			}
			path, err := r.handle.Stop()
			if err != nil {
				return r.engineFailure("stop", err)
			}
			if path != "" {
				r.path = path
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		path := r.masked(r.path)
		if wasRunning {
			r.Emit(EventStopped, true, path)
		}
		return path, nil
	})
}

func pauseRecorder(ctx context.Context, r *Recorder, _ dispatch.NoArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		err := r.Transition(session.OpPause, func() error {
			if err := r.handle.Pause(); err != nil {
				return r.engineFailure("pause", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		r.Emit(EventPaused, true, nil)
		return nil, nil
	})
}

func resumeRecorder(ctx context.Context, r *Recorder, _ dispatch.NoArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		err := r.Transition(session.OpResume, func() error {
			if err := r.handle.Resume(); err != nil {
				return r.engineFailure("resume", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		r.Emit(EventResumed, true, nil)
		return nil, nil
	})
}

func isEncoderSupported(_ context.Context, r *Recorder, a session.CodecArgs) (any, error) {
	return r.deps.Engine.EncoderSupported(*a.Codec), nil
}

// PathArgs names a recorded resource.
type PathArgs struct {
	Path string `json:"path"`
}

func (a *PathArgs) Validate() error {
	if a.Path == "" {
		return apperrors.InvalidArgument("path", "required")
	}
	return nil
}

func getRecordURL(_ context.Context, r *Recorder, a PathArgs) (any, error) {
	if r.deps.Media == nil {
		return a.Path, nil
	}
	path, err := r.deps.Media.Resolve("path", a.Path)
	if err != nil {
		return nil, err
	}
	return r.deps.Media.Mask(path), nil
}

func deleteRecord(ctx context.Context, r *Recorder, a PathArgs) (any, error) {
	policy := r.deps.Media
	if policy == nil {
		policy = &media.Policy{}
	}
	return r.Run(ctx, func() (any, error) {
		path, err := policy.Resolve("path", a.Path)
		if err != nil {
			return nil, err
		}
		if path == r.path && r.Machine().Running() {
			return nil, apperrors.InvalidTransition("delete the current recording", r.State().String())
		}
		deleted, err := policy.Delete(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEngine, err, "delete %s", policy.Mask(path))
		}
		return deleted, nil
	})
}

func setAudioFocus(ctx context.Context, r *Recorder, a session.FocusArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		if err := r.handle.SetFocus(*a.Focus); err != nil {
			return nil, r.engineFailure("setFocus", err)
		}
		return nil, nil
	})
}

func setSubscriptionDuration(ctx context.Context, r *Recorder, a session.SubscriptionArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		r.handle.SetSubscriptionInterval(a.Interval())
		return nil, nil
	})
}

func setLogLevel(ctx context.Context, r *Recorder, a session.LogLevelArgs) (any, error) {
	return r.Run(ctx, func() (any, error) {
		r.SetLogLevel(*a.LogLevel)
		return nil, nil
	})
}

func (r *Recorder) masked(path string) string {
	if r.deps.Media == nil {
		return path
	}
	return r.deps.Media.Mask(path)
}
