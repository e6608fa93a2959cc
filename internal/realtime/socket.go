// Package realtime holds the per-instance view of connected sockets: which
// sockets belong to which user and which rooms they joined.
//
// Nothing here is shared between instances. Cross-instance delivery goes
// through the propagator, which applies every event against each
// instance's local state.
package realtime

import (
	"encoding/json"
	"errors"
)

var (
	// ErrSocketClosed is returned by Emit after the socket disconnected.
	ErrSocketClosed = errors.New("socket closed")
	// ErrSendBufferFull is returned by Emit when the client is not keeping up.
	ErrSendBufferFull = errors.New("socket send buffer full")
)

// Socket is one live client connection on this instance.
type Socket interface {
	// ID is unique per connection.
	ID() string
	// UserID is the authenticated principal, empty for guests.
	UserID() string
	// Emit queues a frame for the client without blocking.
	Emit(channel string, payload json.RawMessage) error
}
