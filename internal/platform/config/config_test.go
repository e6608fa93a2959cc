package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.App)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BusDriverRedis, cfg.Bus.Driver)
	assert.Equal(t, "relay:events", cfg.Bus.Channel)
	assert.Equal(t, 10*time.Second, cfg.Socket.HandshakeTimeout)
	assert.Equal(t, 5, cfg.Kafka.ProduceRetries)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_NAME", "worker")
	t.Setenv("BUS_DRIVER", "nats")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SOCKET_SEND_BUFFER", "8")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.App)
	assert.Equal(t, BusDriverNATS, cfg.Bus.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Socket.SendBuffer)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("unknown bus driver", func(t *testing.T) {
		t.Setenv("BUS_DRIVER", "carrier-pigeon")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("redis bus without url", func(t *testing.T) {
		t.Setenv("BUS_DRIVER", "redis")
		t.Setenv("REDIS_URL", "")
		_, err := FromEnv()
		require.ErrorContains(t, err, "REDIS_URL")
	})
}
