// Package notify runs on the worker tier and turns jobs on the notify topic
// into socket events, so background work can reach connected clients.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"relay/internal/jobs/listener"
	"relay/internal/jobs/models"
)

// Topic is the transport topic notify jobs are dispatched on.
const Topic = "controller.notify"

// Action names.
const (
	ActionBroadcast  = "broadcast"
	ActionSendToRoom = "send_to_room"
	ActionSendToUser = "send_to_user"
)

// ErrInvalidPayload means a notify job's payload is missing required fields.
var ErrInvalidPayload = errors.New("invalid notify payload")

// Propagator is the slice of the event propagator notify needs.
type Propagator interface {
	Broadcast(ctx context.Context, channel string, payload json.RawMessage, exceptSocketID string) error
	SendToRoom(ctx context.Context, room, channel string, payload json.RawMessage, exceptSocketID string) error
	SendToUser(ctx context.Context, userID, channel string, payload json.RawMessage) error
}

// Payload is the job payload of every notify action. Room is used by
// send_to_room and UserID by send_to_user.
type Payload struct {
	Room    string          `json:"room,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Service struct {
	propagator Propagator
	logger     *slog.Logger
}

func New(propagator Propagator, logger *slog.Logger) *Service {
	return &Service{propagator: propagator, logger: logger}
}

// Actions lists every action the service registers.
func Actions() []string {
	return []string{ActionBroadcast, ActionSendToRoom, ActionSendToUser}
}

// Listener builds the notify listener for app.
func (s *Service) Listener(app string, completer listener.Completer, opts ...listener.Option) (*listener.Listener, error) {
	l := listener.New(app, Topic, completer, s.logger, opts...)
	for name, action := range map[string]listener.Action{
		ActionBroadcast:  s.broadcast,
		ActionSendToRoom: s.sendToRoom,
		ActionSendToUser: s.sendToUser,
	} {
		if err := l.Register(name, action); err != nil {
			return nil, err
		}
	}
	if err := l.Require(Actions()...); err != nil {
		return nil, err
	}
	return l, nil
}

func decode(job *models.Job) (Payload, error) {
	var p Payload
	if len(job.Payload) == 0 {
		return p, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.Channel == "" {
		return p, fmt.Errorf("%w: channel is required", ErrInvalidPayload)
	}
	return p, nil
}

func (s *Service) broadcast(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := decode(job)
	if err != nil {
		return nil, err
	}
	return nil, s.propagator.Broadcast(ctx, p.Channel, p.Payload, "")
}

func (s *Service) sendToRoom(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := decode(job)
	if err != nil {
		return nil, err
	}
	if p.Room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrInvalidPayload)
	}
	return nil, s.propagator.SendToRoom(ctx, p.Room, p.Channel, p.Payload, "")
}

func (s *Service) sendToUser(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := decode(job)
	if err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}
	return nil, s.propagator.SendToUser(ctx, p.UserID, p.Channel, p.Payload)
}
