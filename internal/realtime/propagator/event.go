package propagator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names what an Event does on each instance.
type Kind string

const (
	KindJoinRoom   Kind = "JoinRoom"
	KindLeaveRoom  Kind = "LeaveRoom"
	KindSendToRoom Kind = "SendToRoom"
	KindBroadcast  Kind = "Broadcast"
)

func (k Kind) String() string { return string(k) }

// ErrInvalidEvent is returned for events missing fields their kind requires.
var ErrInvalidEvent = errors.New("invalid event")

// Event is the message carried on the bus.
//
// SocketID narrows JoinRoom and LeaveRoom to one socket of the user. On
// SendToRoom and Broadcast it names a socket to skip, usually the sender.
type Event struct {
	Kind     Kind            `json:"kind"`
	UserID   string          `json:"userId,omitempty"`
	Room     string          `json:"room,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SocketID string          `json:"socketId,omitempty"`
}

// Validate checks the fields required by the event kind.
func (e Event) Validate() error {
	switch e.Kind {
	case KindJoinRoom, KindLeaveRoom:
		if e.UserID == "" || e.Room == "" {
			return fmt.Errorf("%w: %s needs userId and room", ErrInvalidEvent, e.Kind)
		}
	case KindSendToRoom:
		if e.Room == "" || e.Channel == "" {
			return fmt.Errorf("%w: %s needs room and channel", ErrInvalidEvent, e.Kind)
		}
	case KindBroadcast:
		if e.Channel == "" {
			return fmt.Errorf("%w: %s needs channel", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}
