// Package engine declares what the session layer needs from a native audio
// engine. Implementations own the actual decoding, playback and capture; the
// session layer only drives their lifecycle and relays their callbacks.
//
// Listener methods are invoked on engine-owned goroutines. Sessions must not
// touch their own state from inside a listener; they hand the callback to
// their executor instead.
package engine

import (
	"errors"
	"time"
)

// ErrFatal marks an engine failure after which the instance is unusable.
// Failures wrapping it destroy the session that owns the instance.
var ErrFatal = errors.New("fatal engine failure")

// Engine allocates player and recorder instances.
type Engine interface {
	NewPlayer(l PlayerListener) (Player, error)
	NewRecorder(l RecorderListener) (Recorder, error)
	DecoderSupported(c Codec) bool
	EncoderSupported(c Codec) bool
}

// PlayRequest describes what a player should start playing. Exactly one of
// Path or Data is set for file/buffer playback; neither is set when the
// caller intends to push audio with Feed.
type PlayRequest struct {
	Path        string
	Data        []byte
	Codec       Codec
	SampleRate  int
	NumChannels int
}

// Streaming reports whether the request plays fed data.
func (r PlayRequest) Streaming() bool {
	return r.Path == "" && len(r.Data) == 0
}

// MicRequest starts a player that monitors the microphone.
type MicRequest struct {
	SampleRate  int
	NumChannels int
	BufferSize  int
}

// RecordRequest describes a recording.
type RecordRequest struct {
	Path        string
	Codec       Codec
	SampleRate  int
	NumChannels int
	BitRate     int
	ToStream    bool
}

// Player is one native playback instance.
type Player interface {
	Start(req PlayRequest) (time.Duration, error)
	StartFromMic(req MicRequest) error
	Stop() error
	Pause() error
	Resume() error
	Seek(pos time.Duration) error
	SetVolume(v float64) error
	SetSpeed(s float64) error
	Progress() (position, duration time.Duration)
	Feed(data []byte) (int, error)
	SetSubscriptionInterval(d time.Duration)
	SetFocus(f Focus) error
	Release() error
}

// Recorder is one native capture instance.
type Recorder interface {
	Start(req RecordRequest) error
	Stop() (string, error)
	Pause() error
	Resume() error
	SetSubscriptionInterval(d time.Duration)
	SetFocus(f Focus) error
	Release() error
}

// PlayerListener receives asynchronous playback notifications.
type PlayerListener interface {
	Progress(position, duration time.Duration)
	Finished()
	Failed(err error)
	NeedsData(n int)
	Log(level LogLevel, msg string)
}

// RecorderListener receives asynchronous capture notifications.
type RecorderListener interface {
	Progress(duration time.Duration, dbPeak float64)
	Data(chunk []byte)
	Failed(err error)
	Log(level LogLevel, msg string)
}
