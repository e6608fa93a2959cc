// Package redisbus implements the instance bus on Redis Pub/Sub.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"relay/internal/realtime/bus"
)

// Bus publishes and subscribes through a shared Redis client.
type Bus struct {
	client redis.UniversalClient
	logger *slog.Logger
}

var _ bus.Bus = (*Bus)(nil)

func New(client redis.UniversalClient, logger *slog.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe blocks until ctx ends or the subscription breaks.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler bus.Handler) error {
	pubsub := b.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	b.logger.InfoContext(ctx, "subscribed to redis channel", "channel", channel)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", channel)
			}
			handler(ctx, []byte(msg.Payload))
		}
	}
}
