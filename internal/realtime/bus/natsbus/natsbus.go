// Package natsbus implements the instance bus on core NATS subjects.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"relay/internal/realtime/bus"
)

// Bus publishes and subscribes over one NATS connection.
type Bus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

var _ bus.Bus = (*Bus)(nil)

// Connect dials url with reconnects enabled.
func Connect(url, name string, logger *slog.Logger) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Bus{conn: conn, logger: logger}, nil
}

func (b *Bus) Publish(_ context.Context, channel string, data []byte) error {
	if err := b.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string, handler bus.Handler) error {
	sub, err := b.conn.Subscribe(channel, func(m *nats.Msg) {
		handler(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && ctx.Err() == nil {
			b.logger.Warn("nats unsubscribe failed", "channel", channel, "error", err)
		}
	}()
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush subscription %s: %w", channel, err)
	}
	b.logger.InfoContext(ctx, "subscribed to nats subject", "subject", channel)
	<-ctx.Done()
	return nil
}

// Health reports whether the connection is usable.
func (b *Bus) Health(context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats: %s", b.conn.Status())
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() error {
	return b.conn.Drain()
}
