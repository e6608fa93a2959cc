// Package realtimetest provides an in-memory Socket for tests.
package realtimetest

import (
	"encoding/json"
	"sync"

	"relay/internal/realtime"
)

// Frame is one emitted message.
type Frame struct {
	Channel string
	Payload json.RawMessage
}

// Socket records every frame emitted to it.
type Socket struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []Frame
	closed bool
}

var _ realtime.Socket = (*Socket)(nil)

func NewSocket(id, userID string) *Socket {
	return &Socket{id: id, userID: userID}
}

func (s *Socket) ID() string     { return s.id }
func (s *Socket) UserID() string { return s.userID }

func (s *Socket) Emit(channel string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return realtime.ErrSocketClosed
	}
	s.frames = append(s.frames, Frame{Channel: channel, Payload: payload})
	return nil
}

// Close makes later emits fail.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Frames returns a copy of the frames received so far.
func (s *Socket) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}
