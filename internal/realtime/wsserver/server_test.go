package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	jwttoken "relay/internal/jwt_token"
	"relay/internal/platform/config"
	"relay/internal/platform/logger"
	"relay/internal/principal/store/memory"
	"relay/internal/realtime"
	"relay/internal/realtime/bus"
	"relay/internal/realtime/gate"
	"relay/internal/realtime/propagator"
	"relay/pkg/domain"
)

type ServerSuite struct {
	suite.Suite
	jwt      *jwttoken.JWTService
	registry *realtime.Registry
	rooms    *realtime.Rooms
	prop     *propagator.Propagator
	http     *httptest.Server
	wsURL    string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	ctx := context.Background()
	s.jwt = jwttoken.NewJWTService("k", "relay", "relay")
	accounts := memory.NewInMemoryStore()
	s.Require().NoError(accounts.Save(ctx, &domain.Account{Principal: domain.Principal{ID: "u1", Role: "admin"}, Active: true}))
	s.Require().NoError(accounts.Save(ctx, &domain.Account{Principal: domain.Principal{ID: "u2", Role: "customer"}, Active: false}))

	s.registry = realtime.NewRegistry()
	s.rooms = realtime.NewRooms()
	b := bus.NewMemory()
	s.prop = propagator.New(b, "relay:events", s.registry, s.rooms, logger.Discard())
	b.Attach("relay:events", func(ctx context.Context, data []byte) { s.prop.OnBusMessage(ctx, data) })

	g := gate.New(jwttoken.NewVerifierAdapter(s.jwt), accounts, time.Second, logger.Discard())
	srv := New(g, s.registry, s.rooms, config.SocketConfig{
		HandshakeTimeout: time.Second,
		PingInterval:     time.Second,
		WriteTimeout:     time.Second,
		SendBuffer:       8,
		ReadLimit:        4096,
	}, logger.Discard())
	s.http = httptest.NewServer(srv)
	s.wsURL = "ws" + strings.TrimPrefix(s.http.URL, "http")
}

func (s *ServerSuite) TearDownTest() {
	s.http.Close()
}

func (s *ServerSuite) dial(query string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(s.wsURL+query, nil)
}

func (s *ServerSuite) token(userID string) string {
	tok, err := s.jwt.GenerateAccessToken(userID, "", time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *ServerSuite) readFrame(wc *websocket.Conn) Frame {
	s.Require().NoError(wc.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f Frame
	s.Require().NoError(wc.ReadJSON(&f))
	return f
}

func (s *ServerSuite) TestGuestReceivesBroadcast() {
	wc, _, err := s.dial("")
	s.Require().NoError(err)
	defer wc.Close()

	hello := s.readFrame(wc)
	s.Equal(SessionChannel, hello.Channel)
	var session sessionPayload
	s.Require().NoError(json.Unmarshal(hello.Payload, &session))
	s.Equal("guest", session.State)
	s.NotEmpty(session.SocketID)

	s.Require().NoError(s.prop.Broadcast(context.Background(), "maintenance", json.RawMessage(`{"at":"22:00"}`), ""))
	f := s.readFrame(wc)
	s.Equal("maintenance", f.Channel)
	s.JSONEq(`{"at":"22:00"}`, string(f.Payload))
}

func (s *ServerSuite) TestAuthenticatedRegistersAndDeregisters() {
	wc, _, err := s.dial("?token=" + s.token("u1"))
	s.Require().NoError(err)

	hello := s.readFrame(wc)
	var session sessionPayload
	s.Require().NoError(json.Unmarshal(hello.Payload, &session))
	s.Equal("authenticated", session.State)
	s.Equal("u1", session.UserID)
	s.ElementsMatch([]string{"USER_u1", "ROLE_admin"}, session.Rooms)
	s.Len(s.registry.Get("u1"), 1)

	s.Require().NoError(s.prop.SendToUser(context.Background(), "u1", "notice", json.RawMessage(`"hi"`)))
	s.Equal("notice", s.readFrame(wc).Channel)

	s.Require().NoError(s.prop.SendToRoom(context.Background(), domain.RoleRoom("admin"), "alert", nil, ""))
	s.Equal("alert", s.readFrame(wc).Channel)

	s.Require().NoError(wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	wc.Close()
	s.Eventually(func() bool { return len(s.registry.Get("u1")) == 0 && s.rooms.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	s.Empty(s.rooms.Members(domain.RoleRoom("admin")))

	s.Require().NoError(s.prop.JoinRoom(context.Background(), "u1", "order-42", ""))
	s.Empty(s.rooms.Members("order-42"))
}

func (s *ServerSuite) TestRejectedBeforeUpgrade() {
	for name, query := range map[string]string{
		"invalid token":    "?token=garbage",
		"inactive account": "?token=" + s.token("u2"),
		"unknown account":  "?token=" + s.token("ghost"),
	} {
		s.Run(name, func() {
			_, resp, err := s.dial(query)
			s.Require().ErrorIs(err, websocket.ErrBadHandshake)
			s.Require().NotNil(resp)
			s.Equal(http.StatusUnauthorized, resp.StatusCode)
		})
	}
	s.Zero(s.rooms.Len())
	s.Zero(s.registry.Count())
}

func (s *ServerSuite) TestEmitAfterShutdown() {
	c := newConn("s1", "u1", "unknown", nil, 1)
	s.NoError(c.Emit("a", nil))
	s.ErrorIs(c.Emit("b", nil), realtime.ErrSendBufferFull)
	c.shutdown()
	c.shutdown()
	s.ErrorIs(c.Emit("c", nil), realtime.ErrSocketClosed)
}
