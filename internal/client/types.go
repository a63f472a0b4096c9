package client

import (
	"encoding/json"
	"fmt"
)

// MessageType mirrors the server's frame types.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgResult   MessageType = "result"
	MsgEvent    MessageType = "event"
)

// Frame is any server frame. Result fields are set for MsgResult, Payload
// for the others.
type Frame struct {
	Type    MessageType     `json:"type"`
	ID      int64           `json:"id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Error is a failed command's structured error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Request is one command frame.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Slot   *int   `json:"slotNo,omitempty"`
	Args   any    `json:"args,omitempty"`
}

// Result is the answer to Call.
type Result struct {
	Status string
	Value  json.RawMessage
	Err    *Error
}

func (r Result) OK() bool { return r.Status == "ok" }

// Event is a session notification.
type Event struct {
	Method  string          `json:"method"`
	Slot    int             `json:"slotNo"`
	State   string          `json:"state"`
	Arg     json.RawMessage `json:"arg,omitempty"`
	Success bool            `json:"success"`
	Level   json.RawMessage `json:"level,omitempty"`
	Msg     string          `json:"msg,omitempty"`
}

type SlotInfo struct {
	Slot  int    `json:"slotNo"`
	State string `json:"state"`
}

type Snapshot struct {
	Kind  string     `json:"kind"`
	Slots []SlotInfo `json:"slots"`
}

// Health is the subset of /api/health the console shows.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Process       struct {
		RSSBytes   uint64  `json:"rssBytes"`
		CPUPercent float64 `json:"cpuPercent"`
		Threads    int32   `json:"threads"`
	} `json:"process"`
	Kinds map[string]struct {
		Live         int    `json:"live"`
		Active       int    `json:"active"`
		EngineErrors int    `json:"engineErrors"`
		LastError    string `json:"lastError"`
	} `json:"kinds"`
}

// DecodeEvent unpacks an event frame.
func (f Frame) DecodeEvent() (Event, error) {
	var ev Event
	err := json.Unmarshal(f.Payload, &ev)
	return ev, err
}

// DecodeSnapshot unpacks a snapshot frame.
func (f Frame) DecodeSnapshot() (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(f.Payload, &s)
	return s, err
}
