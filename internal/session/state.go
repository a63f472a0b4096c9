package session

import (
	"encoding/json"
)

// State is the lifecycle position of one player or recorder session.
type State int

const (
	Created State = iota
	Opened
	Active
	Paused
	Stopped
	Closed
)

var stateNames = map[State]string{
	Created: "created",
	Opened:  "opened",
	Active:  "active",
	Paused:  "paused",
	Stopped: "stopped",
	Closed:  "closed",
}

var stateFromName = map[string]State{
	"created": Created,
	"opened":  Opened,
	"active":  Active,
	"paused":  Paused,
	"stopped": Stopped,
	"closed":  Closed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether no further operation can be applied.
func (s State) IsTerminal() bool {
	return s == Closed
}

// Kind selects the session namespace. Player and recorder sessions never
// share a registry or a channel.
type Kind int

const (
	PlayerKind Kind = iota
	RecorderKind
)

func (k Kind) String() string {
	switch k {
	case PlayerKind:
		return "player"
	case RecorderKind:
		return "recorder"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseKind maps "player"/"recorder" to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "player":
		return PlayerKind, true
	case "recorder":
		return RecorderKind, true
	}
	return 0, false
}
