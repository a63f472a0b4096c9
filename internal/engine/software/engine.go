// Package software is a pure-Go audio engine. Playback decodes with beep and
// is paced in real time by a pump goroutine; there is no output device, so
// rendered samples go to an optional sink. Recording pulls from a
// microphone source and writes WAV or raw PCM16 to disk.
package software

import (
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/tausound/server/internal/engine"
)

// Options configures the engine. Zero values take defaults.
type Options struct {
	// SampleRate is the rate playback is rendered at.
	SampleRate int
	// Tick is the pacing granularity of playback and capture.
	Tick time.Duration
	// FeedLowWater is the byte count requested from the caller when a
	// streaming player runs dry.
	FeedLowWater int
	// Sink receives rendered playback samples.
	Sink func(samples [][2]float64)
	// Mic opens the capture source. The default is silence.
	Mic func(format beep.Format) beep.Streamer
}

const (
	defaultSampleRate   = 44100
	defaultTick         = 20 * time.Millisecond
	defaultFeedLowWater = 8192
	resampleQuality     = 4
)

// Engine allocates software players and recorders.
type Engine struct {
	opts Options
	rate beep.SampleRate
}

var _ engine.Engine = (*Engine)(nil)

func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.FeedLowWater <= 0 {
		opts.FeedLowWater = defaultFeedLowWater
	}
	if opts.Mic == nil {
		opts.Mic = func(beep.Format) beep.Streamer { return beep.Silence(-1) }
	}
	return &Engine{opts: opts, rate: beep.SampleRate(opts.SampleRate)}
}

func (e *Engine) NewPlayer(l engine.PlayerListener) (engine.Player, error) {
	return &Player{eng: e, l: l, volume: 1, speed: 1}, nil
}

func (e *Engine) NewRecorder(l engine.RecorderListener) (engine.Recorder, error) {
	return &Recorder{eng: e, l: l}, nil
}

func (e *Engine) DecoderSupported(c engine.Codec) bool {
	switch c {
	case engine.DefaultCodec, engine.PCM16, engine.PCM16WAV, engine.MP3, engine.FLAC, engine.VorbisOGG:
		return true
	}
	return false
}

func (e *Engine) EncoderSupported(c engine.Codec) bool {
	switch c {
	case engine.DefaultCodec, engine.PCM16, engine.PCM16WAV:
		return true
	}
	return false
}
