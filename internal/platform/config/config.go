package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Bus drivers accepted by BusConfig.Driver.
const (
	BusDriverRedis  = "redis"
	BusDriverNATS   = "nats"
	BusDriverMemory = "memory"
)

// Server captures process level configuration shared by the web and worker tiers.
type Server struct {
	// App is the logical application identity stamped on dispatched jobs and
	// compared by listeners against job.app.
	App       string `envconfig:"APP_NAME" default:"main" validate:"required"`
	Addr      string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	Auth   AuthConfig   `envconfig:"AUTH"`
	Redis  RedisConfig  `envconfig:"REDIS"`
	Kafka  KafkaConfig  `envconfig:"KAFKA"`
	Bus    BusConfig    `envconfig:"BUS"`
	Socket SocketConfig `envconfig:"SOCKET"`
}

// AuthConfig configures bearer verification for sockets and admin routes.
type AuthConfig struct {
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" default:"dev-secret-key-change-in-production" validate:"required"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"relay"`
	JWTAudience   string `envconfig:"JWT_AUDIENCE" default:"relay"`
	AdminRole     string `envconfig:"ADMIN_ROLE" default:"admin"`
}

// RedisConfig configures the shared go-redis client.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"20" validate:"gte=1"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2" validate:"gte=0"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig configures the job transport. An empty broker list selects the
// in-process transport, which only works when web and worker share a process.
type KafkaConfig struct {
	Brokers           []string      `envconfig:"BROKERS"`
	ClientID          string        `envconfig:"CLIENT_ID" default:"relay"`
	ConsumerGroup     string        `envconfig:"CONSUMER_GROUP" default:"relay-workers"`
	ProduceRetries    int           `envconfig:"PRODUCE_RETRIES" default:"5" validate:"gte=0"`
	Partitions        int32         `envconfig:"PARTITIONS" default:"3" validate:"gte=1"`
	ReplicationFactor int16         `envconfig:"REPLICATION_FACTOR" default:"1" validate:"gte=1"`
	FlushTimeout      time.Duration `envconfig:"FLUSH_TIMEOUT" default:"10s"`
}

// BusConfig selects the pub/sub bus every instance subscribes to.
type BusConfig struct {
	Driver  string `envconfig:"DRIVER" default:"redis" validate:"oneof=redis nats memory"`
	Channel string `envconfig:"CHANNEL" default:"relay:events" validate:"required"`
	NATSURL string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
}

// SocketConfig tunes the websocket server.
type SocketConfig struct {
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"10s" validate:"gt=0"`
	PingInterval     time.Duration `envconfig:"PING_INTERVAL" default:"25s" validate:"gt=0"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" validate:"gt=0"`
	SendBuffer       int           `envconfig:"SEND_BUFFER" default:"64" validate:"gte=1"`
	ReadLimit        int64         `envconfig:"READ_LIMIT" default:"65536" validate:"gte=512"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is honoured when present.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return Server{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (s Server) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.Bus.Driver == BusDriverRedis && s.Redis.URL == "" {
		return errors.New("invalid config: REDIS_URL is required for the redis bus")
	}
	return nil
}
