package player

import (
	"context"
	"strings"
	"time"

	"github.com/tausound/server/internal/dispatch"
	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/session"
)

// Namespace returns the player method set. UI-only methods of other hosts
// (setUIProgressBar, nowPlaying) and androidAudioFocusRequest are not
// registered and answer NotImplemented.
func Namespace(deps *Deps) dispatch.Namespace[*Player] {
	return dispatch.Namespace[*Player]{
		Kind:       session.PlayerKind.String(),
		OpenMethod: "openPlayer",
		New:        func(n int) *Player { return New(n, deps) },
		Handlers: map[string]dispatch.Handler[*Player]{
			"closePlayer":             dispatch.With(closePlayer),
			"startPlayer":             dispatch.With(startPlayer),
			"startPlayerFromMic":      dispatch.With(startPlayerFromMic),
			"stopPlayer":              dispatch.With(stopPlayer),
			"pausePlayer":             dispatch.With(pausePlayer),
			"resumePlayer":            dispatch.With(resumePlayer),
			"seekToPlayer":            dispatch.With(seekToPlayer),
			"setVolume":               dispatch.With(setVolume),
			"setSpeed":                dispatch.With(setSpeed),
			"getProgress":             dispatch.With(getProgress),
			"getPlayerState":          dispatch.With(getPlayerState),
			"getResourcePath":         dispatch.With(getResourcePath),
			"feed":                    dispatch.With(feed),
			"isDecoderSupported":      dispatch.With(isDecoderSupported),
			"setAudioFocus":           dispatch.With(setAudioFocus),
			"setActive":               dispatch.With(setActive),
			"setSubscriptionDuration": dispatch.With(setSubscriptionDuration),
			"setLogLevel":             dispatch.With(setLogLevel),
		},
	}
}

func closePlayer(ctx context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		return nil, p.close()
	})
}

// StartArgs selects what to play. With neither fromURI nor fromDataBuffer
// the session plays audio pushed with feed.
type StartArgs struct {
	FromURI        string       `json:"fromURI"`
	FromDataBuffer []byte       `json:"fromDataBuffer"`
	Codec          engine.Codec `json:"codec"`
	SampleRate     int          `json:"sampleRate"`
	NumChannels    int          `json:"numChannels"`
}

func (a *StartArgs) Validate() error {
	if a.FromURI != "" && len(a.FromDataBuffer) > 0 {
		return apperrors.InvalidArgument("fromURI", "cannot be combined with fromDataBuffer")
	}
	if a.SampleRate < 0 {
		return apperrors.InvalidArgument("sampleRate", "must not be negative")
	}
	if a.NumChannels < 0 || a.NumChannels > 2 {
		return apperrors.InvalidArgument("numChannels", "must be 1 or 2")
	}
	return nil
}

func startPlayer(ctx context.Context, p *Player, a StartArgs) (any, error) {
	if a.Codec != engine.DefaultCodec && !p.deps.Engine.DecoderSupported(a.Codec) {
		return nil, apperrors.InvalidArgument("codec", "%s cannot be decoded", a.Codec)
	}
	req := engine.PlayRequest{
		Path:        a.FromURI,
		Data:        a.FromDataBuffer,
		Codec:       a.Codec,
		SampleRate:  a.SampleRate,
		NumChannels: a.NumChannels,
	}
	if req.Path != "" && !strings.Contains(req.Path, "://") && p.deps.Media != nil {
		path, err := p.deps.Media.Resolve("fromURI", req.Path)
		if err != nil {
			return nil, err
		}
		req.Path = path
	}

	return p.Run(ctx, func() (any, error) {
		var dur time.Duration
		err := p.Transition(session.OpStart, func() error {
			d, err := p.handle.Start(req)
			if err != nil {
				return p.engineFailure("start", err)
			}
			dur = d
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.request = req
		p.streaming = req.Streaming()
		p.duration = dur
		p.Emit(EventStarted, true, session.Millis(dur))
		return session.Millis(dur), nil
	})
}

// MicArgs configures playback of the microphone input.
type MicArgs struct {
	SampleRate  int `json:"sampleRate"`
	NumChannels int `json:"numChannels"`
	BufferSize  int `json:"bufferSize"`
}

func (a *MicArgs) Validate() error {
	if a.SampleRate < 0 {
		return apperrors.InvalidArgument("sampleRate", "must not be negative")
	}
	if a.NumChannels < 0 || a.NumChannels > 2 {
		return apperrors.InvalidArgument("numChannels", "must be 1 or 2")
	}
	if a.BufferSize < 0 {
		return apperrors.InvalidArgument("bufferSize", "must not be negative")
	}
	return nil
}

func startPlayerFromMic(ctx context.Context, p *Player, a MicArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		err := p.Transition(session.OpStart, func() error {
			if err := p.handle.StartFromMic(engine.MicRequest(a)); err != nil {
				return p.engineFailure("startFromMic", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.request = engine.PlayRequest{}
		p.streaming = false
		p.duration = 0
		p.Emit(EventStarted, true, int64(0))
		return nil, nil
	})
}

func stopPlayer(ctx context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		wasRunning := p.Machine().Running()
		err := p.Transition(session.OpStop, func() error {
			if !wasRunning {
				return nil
			}
			if err := p.handle.Stop(); err != nil {
				return p.engineFailure("stop", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if wasRunning {
			p.Emit(EventStopped, true, nil)
		}
		return nil, nil
	})
}

func pausePlayer(ctx context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		err := p.Transition(session.OpPause, func() error {
			if err := p.handle.Pause(); err != nil {
				return p.engineFailure("pause", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.Emit(EventPaused, true, nil)
		return nil, nil
	})
}

func resumePlayer(ctx context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		err := p.Transition(session.OpResume, func() error {
			if err := p.handle.Resume(); err != nil {
				return p.engineFailure("resume", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.Emit(EventResumed, true, nil)
		return nil, nil
	})
}

// SeekArgs is a position in milliseconds.
type SeekArgs struct {
	Duration *int64 `json:"duration"`
}

func (a *SeekArgs) Validate() error {
	if a.Duration == nil {
		return apperrors.InvalidArgument("duration", "required")
	}
	if *a.Duration < 0 {
		return apperrors.InvalidArgument("duration", "must not be negative")
	}
	return nil
}

func seekToPlayer(ctx context.Context, p *Player, a SeekArgs) (any, error) {
	pos := time.Duration(*a.Duration) * time.Millisecond
	return p.Run(ctx, func() (any, error) {
		if !p.Machine().Running() {
			return nil, apperrors.InvalidTransition("seek", p.State().String())
		}
		if err := p.handle.Seek(pos); err != nil {
			return nil, p.engineFailure("seek", err)
		}
		return nil, nil
	})
}

// VolumeArgs is a linear gain in [0, 1].
type VolumeArgs struct {
	Volume *float64 `json:"volume"`
}

func (a *VolumeArgs) Validate() error {
	if a.Volume == nil {
		return apperrors.InvalidArgument("volume", "required")
	}
	if *a.Volume < 0 || *a.Volume > 1 {
		return apperrors.InvalidArgument("volume", "must be within [0, 1]")
	}
	return nil
}

func setVolume(ctx context.Context, p *Player, a VolumeArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		if err := p.handle.SetVolume(*a.Volume); err != nil {
			return nil, p.engineFailure("setVolume", err)
		}
		return nil, nil
	})
}

// SpeedArgs is a playback rate multiplier.
type SpeedArgs struct {
	Speed *float64 `json:"speed"`
}

func (a *SpeedArgs) Validate() error {
	if a.Speed == nil {
		return apperrors.InvalidArgument("speed", "required")
	}
	if *a.Speed <= 0 {
		return apperrors.InvalidArgument("speed", "must be positive")
	}
	return nil
}

func setSpeed(ctx context.Context, p *Player, a SpeedArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		if err := p.handle.SetSpeed(*a.Speed); err != nil {
			return nil, p.engineFailure("setSpeed", err)
		}
		return nil, nil
	})
}

func getProgress(ctx context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		if p.handle == nil {
			return progressOf(0, 0), nil
		}
		return progressOf(p.handle.Progress()), nil
	})
}

func getPlayerState(_ context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	return p.State(), nil
}

func getResourcePath(_ context.Context, p *Player, _ dispatch.NoArgs) (any, error) {
	if p.deps.Media == nil {
		return "", nil
	}
	return p.deps.Media.Mask(p.deps.Media.Root), nil
}

// FeedArgs carries encoded audio; JSON transports it as base64.
type FeedArgs struct {
	Data []byte `json:"data"`
}

func (a *FeedArgs) Validate() error {
	if len(a.Data) == 0 {
		return apperrors.InvalidArgument("data", "required")
	}
	return nil
}

func feed(ctx context.Context, p *Player, a FeedArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		if p.State() != session.Active || !p.streaming {
			return nil, apperrors.InvalidTransition("feed", p.State().String())
		}
		n, err := p.handle.Feed(a.Data)
		if err != nil {
			return nil, p.engineFailure("feed", err)
		}
		return n, nil
	})
}

func isDecoderSupported(_ context.Context, p *Player, a session.CodecArgs) (any, error) {
	return p.deps.Engine.DecoderSupported(*a.Codec), nil
}

func setAudioFocus(ctx context.Context, p *Player, a session.FocusArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		if err := p.handle.SetFocus(*a.Focus); err != nil {
			return nil, p.engineFailure("setFocus", err)
		}
		return nil, nil
	})
}

// ActiveArgs requests or abandons audio focus.
type ActiveArgs struct {
	Enabled bool `json:"enabled"`
}

func setActive(ctx context.Context, p *Player, a ActiveArgs) (any, error) {
	focus := engine.AbandonFocus
	if a.Enabled {
		focus = engine.RequestFocus
	}
	return p.Run(ctx, func() (any, error) {
		if err := p.handle.SetFocus(focus); err != nil {
			return nil, p.engineFailure("setFocus", err)
		}
		return nil, nil
	})
}

func setSubscriptionDuration(ctx context.Context, p *Player, a session.SubscriptionArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		p.handle.SetSubscriptionInterval(a.Interval())
		return nil, nil
	})
}

func setLogLevel(ctx context.Context, p *Player, a session.LogLevelArgs) (any, error) {
	return p.Run(ctx, func() (any, error) {
		p.SetLogLevel(*a.LogLevel)
		return nil, nil
	})
}
