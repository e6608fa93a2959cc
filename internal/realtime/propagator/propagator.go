// Package propagator moves socket events between instances.
//
// An instance never targets a socket directly. It publishes an Event on the
// bus and every instance, itself included, applies the event to the sockets
// it holds locally. An instance holding none of the targets does nothing.
package propagator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"relay/internal/realtime"
	"relay/internal/realtime/bus"
	"relay/internal/realtime/metrics"
	"relay/pkg/domain"
)

// Propagator publishes events and applies the ones it receives.
type Propagator struct {
	bus      bus.Bus
	channel  string
	registry *realtime.Registry
	rooms    *realtime.Rooms
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithMetrics enables prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Propagator) {
		p.metrics = m
	}
}

// New builds a propagator over the instance's registry and rooms. channel is
// the bus channel shared by every instance.
func New(b bus.Bus, channel string, registry *realtime.Registry, rooms *realtime.Rooms, logger *slog.Logger, opts ...Option) *Propagator {
	p := &Propagator{
		bus:      b,
		channel:  channel,
		registry: registry,
		rooms:    rooms,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Propagate publishes ev to every instance.
func (p *Propagator) Propagate(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.bus.Publish(ctx, p.channel, data); err != nil {
		if p.metrics != nil {
			p.metrics.IncPublishFailures()
		}
		return fmt.Errorf("propagate %s: %w", ev.Kind, err)
	}
	return nil
}

// JoinRoom adds the user's sockets to room on every instance. A non-empty
// socketID restricts the join to that socket.
func (p *Propagator) JoinRoom(ctx context.Context, userID, room, socketID string) error {
	return p.Propagate(ctx, Event{Kind: KindJoinRoom, UserID: userID, Room: room, SocketID: socketID})
}

// LeaveRoom removes the user's sockets from room on every instance.
func (p *Propagator) LeaveRoom(ctx context.Context, userID, room, socketID string) error {
	return p.Propagate(ctx, Event{Kind: KindLeaveRoom, UserID: userID, Room: room, SocketID: socketID})
}

// SendToRoom emits to every member of room except exceptSocketID.
func (p *Propagator) SendToRoom(ctx context.Context, room, channel string, payload json.RawMessage, exceptSocketID string) error {
	return p.Propagate(ctx, Event{Kind: KindSendToRoom, Room: room, Channel: channel, Payload: payload, SocketID: exceptSocketID})
}

// SendToUser emits to every socket of userID, on whichever instances hold them.
func (p *Propagator) SendToUser(ctx context.Context, userID, channel string, payload json.RawMessage) error {
	if userID == "" {
		return fmt.Errorf("%w: send to user needs userId", ErrInvalidEvent)
	}
	return p.SendToRoom(ctx, domain.UserRoom(userID), channel, payload, "")
}

// Broadcast emits to every connected socket except exceptSocketID.
func (p *Propagator) Broadcast(ctx context.Context, channel string, payload json.RawMessage, exceptSocketID string) error {
	return p.Propagate(ctx, Event{Kind: KindBroadcast, Channel: channel, Payload: payload, SocketID: exceptSocketID})
}

// OnBusMessage applies one bus message to local state and returns how many
// local sockets it affected.
func (p *Propagator) OnBusMessage(ctx context.Context, data []byte) int {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		p.logger.WarnContext(ctx, "undecodable bus message, ignoring", "error", err)
		return 0
	}
	if err := ev.Validate(); err != nil {
		p.logger.WarnContext(ctx, "invalid bus event, ignoring", "error", err)
		return 0
	}

	var n int
	switch ev.Kind {
	case KindJoinRoom:
		n = p.eachUserSocket(ev, func(s realtime.Socket) bool { return p.rooms.Join(ev.Room, s) })
	case KindLeaveRoom:
		n = p.eachUserSocket(ev, func(s realtime.Socket) bool {
			p.rooms.Leave(ev.Room, s)
			return true
		})
	case KindSendToRoom:
		n = p.emit(ctx, ev, p.rooms.Members(ev.Room))
	case KindBroadcast:
		n = p.emit(ctx, ev, p.rooms.All())
	}

	if p.metrics != nil {
		p.metrics.ObserveBusMessage(ev.Kind.String(), n)
	}
	if n == 0 {
		p.logger.DebugContext(ctx, "no local targets for event",
			"kind", ev.Kind.String(),
			"room", ev.Room,
			"user_id", ev.UserID,
		)
	}
	return n
}

func (p *Propagator) eachUserSocket(ev Event, apply func(realtime.Socket) bool) int {
	n := 0
	for _, s := range p.registry.Get(ev.UserID) {
		if ev.SocketID != "" && s.ID() != ev.SocketID {
			continue
		}
		if apply(s) {
			n++
		}
	}
	return n
}

func (p *Propagator) emit(ctx context.Context, ev Event, targets []realtime.Socket) int {
	n := 0
	for _, s := range targets {
		if ev.SocketID != "" && s.ID() == ev.SocketID {
			continue
		}
		if err := s.Emit(ev.Channel, ev.Payload); err != nil {
			if p.metrics != nil {
				p.metrics.IncDroppedFrames()
			}
			level := slog.LevelWarn
			if errors.Is(err, realtime.ErrSocketClosed) {
				level = slog.LevelDebug
			}
			p.logger.Log(ctx, level, "failed to emit to socket",
				"socket_id", s.ID(),
				"channel", ev.Channel,
				"error", err,
			)
			continue
		}
		n++
	}
	return n
}

// Run subscribes to the bus and applies events until ctx ends.
func (p *Propagator) Run(ctx context.Context) error {
	return p.bus.Subscribe(ctx, p.channel, func(ctx context.Context, data []byte) {
		p.OnBusMessage(ctx, data)
	})
}
