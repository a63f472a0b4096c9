package ws

import (
	"errors"

	"github.com/tausound/server/internal/dispatch"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/event"
	"github.com/tausound/server/internal/slot"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgResult   MessageType = "result"
	MsgEvent    MessageType = "event"
)

// Request is the frame a caller sends on a kind's channel.
type Request = dispatch.Command

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is sent once on connect so a caller can resynchronise.
type SnapshotPayload struct {
	Kind  string      `json:"kind"`
	Slots []slot.Info `json:"slots"`
}

type ErrorPayload struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
}

// ResultMessage answers exactly one Request, matched by ID.
type ResultMessage struct {
	Type   MessageType     `json:"type"`
	ID     int64           `json:"id"`
	Status dispatch.Status `json:"status"`
	Value  interface{}     `json:"value,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

func newResultMessage(id int64, res dispatch.Result) ResultMessage {
	msg := ResultMessage{Type: MsgResult, ID: id, Status: res.Status, Value: res.Value}
	if res.Err != nil {
		msg.Error = &ErrorPayload{Code: res.Code(), Message: res.Err.Error()}
		var appErr *apperrors.Error
		if errors.As(res.Err, &appErr) {
			msg.Error.Field = appErr.Metadata["field"]
		}
	}
	return msg
}

func newEventMessage(ev event.Event) WSMessage {
	return WSMessage{Type: MsgEvent, Payload: ev}
}
