//go:build integration

package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/platform/logger"
	"relay/pkg/testutil/containers"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first := New(rc.Client, logger.Discard())
	second := New(rc.Client, logger.Discard())

	got := make(chan string, 2)
	for _, b := range []*Bus{first, second} {
		go func() {
			_ = b.Subscribe(ctx, "relay:events", func(_ context.Context, data []byte) {
				got <- string(data)
			})
		}()
	}

	require.Eventually(t, func() bool {
		counts, err := rc.Client.PubSubNumSub(ctx, "relay:events").Result()
		return err == nil && counts["relay:events"] == 2
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, first.Publish(ctx, "relay:events", []byte(`{"kind":"Broadcast"}`)))
	for range 2 {
		select {
		case msg := <-got:
			require.JSONEq(t, `{"kind":"Broadcast"}`, msg)
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}
