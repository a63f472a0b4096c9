package console

import "sort"

var kindMethods = map[string][]string{
	"player": {
		"openPlayer", "closePlayer", "startPlayer", "startPlayerFromMic",
		"stopPlayer", "pausePlayer", "resumePlayer", "seekToPlayer",
		"setVolume", "setSpeed", "getProgress", "getPlayerState",
		"getResourcePath", "feed", "isDecoderSupported", "setAudioFocus",
		"setActive", "setSubscriptionDuration", "setLogLevel", "resetPlugin",
	},
	"recorder": {
		"openRecorder", "closeRecorder", "startRecorder", "stopRecorder",
		"pauseRecorder", "resumeRecorder", "isEncoderSupported",
		"getRecordURL", "deleteRecord", "setAudioFocus",
		"setSubscriptionDuration", "setLogLevel", "resetPlugin",
	},
}

// Kinds lists the channels the server exposes.
func Kinds() []string { return []string{"player", "recorder"} }

// Methods returns the sorted method names of kind.
func Methods(kind string) []string {
	out := append([]string(nil), kindMethods[kind]...)
	sort.Strings(out)
	return out
}
