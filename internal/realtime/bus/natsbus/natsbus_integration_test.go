//go:build integration

package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/platform/logger"
	"relay/pkg/testutil/containers"
)

const subject = "relay.events"

func connect(t *testing.T, url, name string) *Bus {
	t.Helper()
	b, err := Connect(url, name, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// awaitSubscribed waits until the server has processed b's subscription.
func awaitSubscribed(t *testing.T, b *Bus, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.conn.NumSubscriptions() == want && b.conn.Flush() == nil
	}, 10*time.Second, 20*time.Millisecond)
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	nc := containers.NewNATSContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first := connect(t, nc.URL, "instance-1")
	second := connect(t, nc.URL, "instance-2")

	got := make(chan string, 2)
	for _, b := range []*Bus{first, second} {
		go func() {
			_ = b.Subscribe(ctx, subject, func(_ context.Context, data []byte) {
				got <- string(data)
			})
		}()
	}
	awaitSubscribed(t, first, 1)
	awaitSubscribed(t, second, 1)

	require.NoError(t, first.Publish(ctx, subject, []byte(`{"kind":"Broadcast"}`)))
	for range 2 {
		select {
		case msg := <-got:
			require.JSONEq(t, `{"kind":"Broadcast"}`, msg)
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestSubscribeReturnsNilOnCancel(t *testing.T) {
	nc := containers.NewNATSContainer(t)
	b := connect(t, nc.URL, "instance-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, subject, func(context.Context, []byte) {})
	}()
	awaitSubscribed(t, b, 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	assert.Zero(t, b.conn.NumSubscriptions())
}

func TestHealth(t *testing.T) {
	nc := containers.NewNATSContainer(t)
	b, err := Connect(nc.URL, "instance-1", logger.Discard())
	require.NoError(t, err)

	require.NoError(t, b.Health(context.Background()))

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return b.Health(context.Background()) != nil
	}, 5*time.Second, 20*time.Millisecond)
}
