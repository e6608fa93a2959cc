// Package transport defines the point-to-point message transport used to hand
// jobs from dispatchers to listeners, plus an in-process implementation.
//
// Delivery is at-least-once and asynchronous: Emit never reports delivery
// failures to the caller. Implementations log and count them instead.
package transport

import (
	"context"
	"log/slog"
)

// Record is one message on the transport.
type Record struct {
	Topic string
	Key   []byte
	Value []byte
}

// Emitter publishes records. Emit returns once the record is handed to the
// transport, not once it is delivered.
type Emitter interface {
	Emit(ctx context.Context, rec *Record)
}

// Handler processes a delivered record. A nil error acknowledges the record.
type Handler interface {
	Handle(ctx context.Context, rec *Record) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rec *Record) error

func (f HandlerFunc) Handle(ctx context.Context, rec *Record) error { return f(ctx, rec) }

// Router dispatches records to topic-specific handlers.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRouter creates an empty topic router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a handler for a specific topic, replacing any previous one.
func (r *Router) Register(topic string, handler Handler) {
	r.handlers[topic] = handler
}

// Topics lists every topic with a registered handler.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Handle routes the record to the handler registered for its topic.
func (r *Router) Handle(ctx context.Context, rec *Record) error {
	handler, ok := r.handlers[rec.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, skipping record",
			"topic", rec.Topic,
			"key", string(rec.Key),
		)
		return nil // acknowledge to avoid redelivery
	}
	return handler.Handle(ctx, rec)
}
