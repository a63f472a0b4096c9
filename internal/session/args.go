package session

import (
	"time"

	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
)

// Argument structs shared by the player and recorder method sets.

// OpenArgs configures a session as it is opened.
type OpenArgs struct {
	LogLevel *engine.LogLevel `json:"logLevel"`
}

// CodecArgs names a codec for capability queries.
type CodecArgs struct {
	Codec *engine.Codec `json:"codec"`
}

func (a *CodecArgs) Validate() error {
	if a.Codec == nil {
		return apperrors.InvalidArgument("codec", "required")
	}
	return nil
}

// FocusArgs requests an audio-focus behaviour. Category, mode and device
// are passed through to hosts that distinguish them.
type FocusArgs struct {
	Focus    *engine.Focus `json:"focus"`
	Category int           `json:"category"`
	Mode     int           `json:"mode"`
	Device   int           `json:"device"`
}

func (a *FocusArgs) Validate() error {
	if a.Focus == nil {
		return apperrors.InvalidArgument("focus", "required")
	}
	return nil
}

// SubscriptionArgs sets the progress event interval in milliseconds. Zero
// disables progress events.
type SubscriptionArgs struct {
	Duration *int64 `json:"duration"`
}

func (a *SubscriptionArgs) Validate() error {
	if a.Duration == nil {
		return apperrors.InvalidArgument("duration", "required")
	}
	if *a.Duration < 0 {
		return apperrors.InvalidArgument("duration", "must not be negative")
	}
	return nil
}

// Interval returns the requested interval.
func (a SubscriptionArgs) Interval() time.Duration {
	if a.Duration == nil {
		return 0
	}
	return time.Duration(*a.Duration) * time.Millisecond
}

// LogLevelArgs changes the diagnostic threshold.
type LogLevelArgs struct {
	LogLevel *engine.LogLevel `json:"logLevel"`
}

func (a *LogLevelArgs) Validate() error {
	if a.LogLevel == nil {
		return apperrors.InvalidArgument("logLevel", "required")
	}
	return nil
}

// Millis converts d to whole milliseconds for the wire.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}
