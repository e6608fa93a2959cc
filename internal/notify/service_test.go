package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"relay/internal/jobs/dispatcher"
	"relay/internal/jobs/models"
	"relay/internal/jobs/store/memory"
	"relay/internal/jobs/transport"
	"relay/internal/platform/logger"
	"relay/internal/realtime"
	"relay/internal/realtime/bus"
	"relay/internal/realtime/propagator"
	"relay/internal/realtime/realtimetest"
	"relay/pkg/domain"
)

// NotifySuite wires web-side dispatch through the in-memory transport to the
// worker listener, and from there over the bus to a web instance's sockets.
type NotifySuite struct {
	suite.Suite
	store      *memory.InMemoryStore
	mem        *transport.Memory
	dispatcher *dispatcher.Dispatcher
	registry   *realtime.Registry
	rooms      *realtime.Rooms
	ctx        context.Context
}

func TestNotifySuite(t *testing.T) {
	suite.Run(t, new(NotifySuite))
}

func (s *NotifySuite) SetupTest() {
	s.ctx = context.Background()
	b := bus.NewMemory()

	// web instance holding the sockets
	s.registry = realtime.NewRegistry()
	s.rooms = realtime.NewRooms()
	web := propagator.New(b, "relay:events", s.registry, s.rooms, logger.Discard())
	b.Attach("relay:events", func(ctx context.Context, data []byte) { web.OnBusMessage(ctx, data) })

	// worker instance: no sockets, publishes only
	worker := propagator.New(b, "relay:events", realtime.NewRegistry(), realtime.NewRooms(), logger.Discard())

	router := transport.NewRouter(logger.Discard())
	s.mem = transport.NewMemory(router, logger.Discard())
	s.store = memory.NewInMemoryStore()
	s.dispatcher = dispatcher.New(s.store, s.mem, logger.Discard())

	l, err := New(worker, logger.Discard()).Listener("main", s.dispatcher)
	s.Require().NoError(err)
	router.Register(Topic, l)
}

func (s *NotifySuite) dispatch(action string, payload string) *models.AuditRecord {
	job, err := s.dispatcher.Dispatch(s.ctx, Topic, &models.Job{
		App:     "main",
		Action:  action,
		Payload: json.RawMessage(payload),
	})
	s.Require().NoError(err)
	s.mem.Drain()
	rec, err := s.store.FindByID(s.ctx, job.UID)
	s.Require().NoError(err)
	return rec
}

func (s *NotifySuite) connect(id, userID string, rooms ...string) *realtimetest.Socket {
	sock := realtimetest.NewSocket(id, userID)
	s.rooms.Connect(sock)
	if userID != "" {
		s.registry.Add(userID, sock)
		s.rooms.Join(domain.UserRoom(userID), sock)
	}
	for _, room := range rooms {
		s.rooms.Join(room, sock)
	}
	return sock
}

func (s *NotifySuite) TestBroadcast() {
	a := s.connect("a", "")
	b := s.connect("b", "u1")

	rec := s.dispatch(ActionBroadcast, `{"channel":"maintenance","payload":{"in":"5m"}}`)
	s.Equal(models.StatusCompleted, rec.Status)
	s.Len(a.Frames(), 1)
	s.Len(b.Frames(), 1)
}

func (s *NotifySuite) TestSendToRoom() {
	admin := s.connect("a", "u1", domain.RoleRoom("admin"))
	other := s.connect("b", "u2")

	rec := s.dispatch(ActionSendToRoom, `{"room":"ROLE_admin","channel":"alert","payload":1}`)
	s.Equal(models.StatusCompleted, rec.Status)
	s.Len(admin.Frames(), 1)
	s.Empty(other.Frames())
}

func (s *NotifySuite) TestSendToUser() {
	phone := s.connect("p", "u1")
	laptop := s.connect("l", "u1")
	stranger := s.connect("x", "u2")

	rec := s.dispatch(ActionSendToUser, `{"userId":"u1","channel":"notice","payload":"hi"}`)
	s.Equal(models.StatusCompleted, rec.Status)
	s.Len(phone.Frames(), 1)
	s.Len(laptop.Frames(), 1)
	s.Empty(stranger.Frames())
}

func (s *NotifySuite) TestInvalidPayloadIsAudited() {
	rec := s.dispatch(ActionSendToUser, `{"channel":"notice"}`)
	s.Equal(models.StatusErrored, rec.Status)
	s.Require().NotNil(rec.Response)
	s.Contains(rec.Response.Error, "userId is required")

	rec = s.dispatch(ActionBroadcast, `{}`)
	s.Equal(models.StatusErrored, rec.Status)
}

func (s *NotifySuite) TestUnknownActionIsAudited() {
	rec := s.dispatch("send_fax", `{"channel":"x"}`)
	s.Equal(models.StatusErrored, rec.Status)
}
