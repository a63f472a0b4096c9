package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Codec identifies an audio container/encoding. Values are ordinal and
// match the numbering callers send on the wire.
type Codec int

const (
	DefaultCodec Codec = iota
	AACADTS
	OpusOGG
	OpusCAF
	MP3
	VorbisOGG
	PCM16
	PCM16WAV
	PCM16AIFF
	PCM16CAF
	FLAC
	AACMP4
	AMRNB
	AMRWB
	PCM8
	PCMFloat32
	PCMWebM
	OpusWebM
	VorbisWebM
)

var codecNames = []string{
	"defaultCodec", "aacADTS", "opusOGG", "opusCAF", "mp3", "vorbisOGG",
	"pcm16", "pcm16WAV", "pcm16AIFF", "pcm16CAF", "flac", "aacMP4",
	"amrNB", "amrWB", "pcm8", "pcmFloat32", "pcmWebM", "opusWebM", "vorbisWebM",
}

func (c Codec) String() string {
	if c < 0 || int(c) >= len(codecNames) {
		return fmt.Sprintf("codec(%d)", int(c))
	}
	return codecNames[c]
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	return c >= 0 && int(c) < len(codecNames)
}

// ParseCodec resolves a codec by name.
func ParseCodec(name string) (Codec, bool) {
	for i, n := range codecNames {
		if n == name {
			return Codec(i), true
		}
	}
	return 0, false
}

func (c Codec) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either the ordinal or the codec name.
func (c *Codec) UnmarshalJSON(data []byte) error {
	v, err := ordinalOrName(data, ParseCodec)
	if err != nil {
		return err
	}
	if !v.Valid() {
		return fmt.Errorf("unknown codec %d", int(v))
	}
	*c = v
	return nil
}

// LogLevel filters engine diagnostics forwarded to the caller.
type LogLevel int

const (
	LogVerbose LogLevel = iota
	LogDebug
	LogInfo
	LogWarning
	LogError
	LogWTF
	LogNothing
)

var logLevelNames = []string{"verbose", "debug", "info", "warning", "error", "wtf", "nothing"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return logLevelNames[l]
}

// ParseLogLevel resolves a level by name.
func ParseLogLevel(name string) (LogLevel, bool) {
	for i, n := range logLevelNames {
		if n == name {
			return LogLevel(i), true
		}
	}
	return 0, false
}

// Valid reports whether l is a known level.
func (l LogLevel) Valid() bool {
	return l >= 0 && int(l) < len(logLevelNames)
}

// Enabled reports whether a message at msg passes a threshold of l.
func (l LogLevel) Enabled(msg LogLevel) bool {
	return l != LogNothing && msg >= l
}

// Slog maps the level onto the process logger's levels.
func (l LogLevel) Slog() slog.Level {
	switch {
	case l <= LogDebug:
		return slog.LevelDebug
	case l == LogInfo:
		return slog.LevelInfo
	case l == LogWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// UnmarshalJSON accepts either the ordinal or the level name.
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	v, err := ordinalOrName(data, ParseLogLevel)
	if err != nil {
		return err
	}
	if !v.Valid() {
		return fmt.Errorf("unknown log level %d", int(v))
	}
	*l = v
	return nil
}

// UnmarshalText lets config files and environment variables name levels.
func (l *LogLevel) UnmarshalText(text []byte) error {
	v, ok := ParseLogLevel(string(text))
	if !ok {
		return fmt.Errorf("unknown log level %q", text)
	}
	*l = v
	return nil
}

// Focus is the audio-focus behaviour requested from the host.
type Focus int

const (
	RequestFocus Focus = iota
	RequestFocusAndStopOthers
	RequestFocusAndDuckOthers
	RequestFocusAndKeepOthers
	RequestFocusTransient
	RequestFocusTransientExclusive
	AbandonFocus
	DoNotRequestFocus
)

var focusNames = []string{
	"requestFocus", "requestFocusAndStopOthers", "requestFocusAndDuckOthers",
	"requestFocusAndKeepOthers", "requestFocusTransient", "requestFocusTransientExclusive",
	"abandonFocus", "doNotRequestFocus",
}

func (f Focus) String() string {
	if f < 0 || int(f) >= len(focusNames) {
		return fmt.Sprintf("focus(%d)", int(f))
	}
	return focusNames[f]
}

// ParseFocus resolves a focus mode by name.
func ParseFocus(name string) (Focus, bool) {
	for i, n := range focusNames {
		if n == name {
			return Focus(i), true
		}
	}
	return 0, false
}

// UnmarshalJSON accepts either the ordinal or the focus name.
func (f *Focus) UnmarshalJSON(data []byte) error {
	v, err := ordinalOrName(data, ParseFocus)
	if err != nil {
		return err
	}
	if v < 0 || int(v) >= len(focusNames) {
		return fmt.Errorf("unknown focus mode %d", int(v))
	}
	*f = v
	return nil
}

func ordinalOrName[T ~int](data []byte, parse func(string) (T, bool)) (T, error) {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return T(n), nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, fmt.Errorf("expected a number or a name, got %s", data)
	}
	v, ok := parse(s)
	if !ok {
		return 0, fmt.Errorf("unknown name %q", s)
	}
	return v, nil
}
