// Package wsserver upgrades authenticated HTTP requests to websockets and
// keeps each socket registered in the instance's registry and rooms for as
// long as it is connected.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relay/internal/platform/config"
	"relay/internal/realtime"
	"relay/internal/realtime/gate"
	"relay/internal/realtime/metrics"
	"relay/pkg/platform/middleware/device"
)

// SessionChannel carries the handshake summary sent to every new socket.
const SessionChannel = "session"

// Authenticator resolves the session of a handshake request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*gate.Session, error)
}

// Server is the /ws handler.
type Server struct {
	auth     Authenticator
	registry *realtime.Registry
	rooms    *realtime.Rooms
	cfg      config.SocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics enables connection gauges and handshake counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

func New(auth Authenticator, registry *realtime.Registry, rooms *realtime.Rooms, cfg config.SocketConfig, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		auth:     auth,
		registry: registry,
		rooms:    rooms,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type sessionPayload struct {
	SocketID string   `json:"socketId"`
	State    string   `json:"state"`
	UserID   string   `json:"userId,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := s.auth.Authenticate(ctx, r)
	if err != nil {
		outcome, status := "error", http.StatusServiceUnavailable
		switch {
		case errors.Is(err, gate.ErrAuthenticationRejected):
			outcome, status = "rejected", http.StatusUnauthorized
		case errors.Is(err, gate.ErrStalePrincipal):
			outcome, status = "stale", http.StatusUnauthorized
		default:
			s.logger.ErrorContext(ctx, "socket authentication failed", "error", err)
		}
		if s.metrics != nil {
			s.metrics.IncHandshake(outcome)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	wc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncHandshake(session.State.String())
	}

	c := newConn(uuid.NewString(), session.Principal.ID, device.Label(r.UserAgent()), wc, s.cfg.SendBuffer)
	s.register(c, session)
	s.logger.InfoContext(ctx, "socket connected",
		"socket_id", c.id,
		"user_id", c.userID,
		"state", session.State.String(),
		"device", c.device,
	)

	hello, _ := json.Marshal(sessionPayload{
		SocketID: c.id,
		State:    session.State.String(),
		UserID:   c.userID,
		Rooms:    session.Rooms,
	})
	_ = c.Emit(SessionChannel, hello)

	writeDone := make(chan error, 1)
	go func() { writeDone <- c.writePump(s.cfg.PingInterval, s.cfg.WriteTimeout) }()

	readErr := c.readLoop(s.cfg.ReadLimit, s.pongWait())
	s.deregister(c)
	c.shutdown()
	writeErr := <-writeDone

	if err := errors.Join(readErr, writeErr); err != nil {
		s.logger.DebugContext(ctx, "socket closed with error", "socket_id", c.id, "error", err)
	}
	s.logger.InfoContext(ctx, "socket disconnected",
		"socket_id", c.id,
		"user_id", c.userID,
		"device", c.device,
	)
}

func (s *Server) pongWait() time.Duration {
	return s.cfg.PingInterval * 2
}

func (s *Server) register(c *conn, session *gate.Session) {
	s.rooms.Connect(c)
	if session.Authenticated() {
		s.registry.Add(c.userID, c)
	}
	for _, room := range session.Rooms {
		s.rooms.Join(room, c)
	}
	s.observe()
}

// deregister drops the socket from the registry first so that bus events
// resolving sockets by user can no longer find it.
func (s *Server) deregister(c *conn) {
	if c.userID != "" {
		s.registry.Remove(c.userID, c)
	}
	s.rooms.Disconnect(c)
	s.observe()
}

func (s *Server) observe() {
	if s.metrics != nil {
		s.metrics.SetConnected(s.rooms.Len(), s.registry.Count())
	}
}
