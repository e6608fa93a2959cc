package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"relay/internal/jobs/dispatcher"
	"relay/internal/jobs/models"
	"relay/internal/jobs/store/memory"
	"relay/internal/jobs/transport"
	"relay/internal/platform/logger"
)

type completion struct {
	multi bool
	job   models.Job
	resp  models.Response
}

type recordingCompleter struct {
	mu    sync.Mutex
	calls []completion
	err   error
}

func (c *recordingCompleter) Complete(_ context.Context, job *models.Job, resp models.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completion{job: *job, resp: resp})
	return c.err
}

func (c *recordingCompleter) CompleteMulti(_ context.Context, job *models.Job, resp models.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completion{multi: true, job: *job, resp: resp})
	return c.err
}

func record(t *testing.T, job models.Job) *transport.Record {
	t.Helper()
	value, err := json.Marshal(job)
	require.NoError(t, err)
	return &transport.Record{Topic: "controller.sms", Key: []byte(job.UID), Value: value}
}

type ListenerSuite struct {
	suite.Suite
	completer *recordingCompleter
	executed  int
	listener  *Listener
}

func TestListenerSuite(t *testing.T) {
	suite.Run(t, new(ListenerSuite))
}

func (s *ListenerSuite) SetupTest() {
	s.completer = &recordingCompleter{}
	s.executed = 0
	s.listener = New("main", "controller.sms", s.completer, logger.Discard(),
		WithAction("send", func(_ context.Context, job *models.Job) (json.RawMessage, error) {
			s.executed++
			return json.RawMessage(`{"sid":"SM1"}`), nil
		}),
		WithAction("fail", func(context.Context, *models.Job) (json.RawMessage, error) {
			s.executed++
			return nil, errors.New("provider rejected number")
		}),
		WithAction("explode", func(context.Context, *models.Job) (json.RawMessage, error) {
			panic("nil provider")
		}),
	)
}

func (s *ListenerSuite) TestExecutesAndCompletes() {
	err := s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "send"}))
	s.Require().NoError(err)

	s.Equal(1, s.executed)
	s.Require().Len(s.completer.calls, 1)
	call := s.completer.calls[0]
	s.False(call.multi)
	s.Equal("j1", call.job.UID)
	s.False(call.resp.Failed())
	s.JSONEq(`{"sid":"SM1"}`, string(call.resp.Data))
}

func (s *ListenerSuite) TestAppGate() {
	err := s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "billing", UID: "j1", Action: "send"}))
	s.Require().NoError(err)

	s.Zero(s.executed, "foreign app jobs never execute")
	s.Empty(s.completer.calls, "foreign app jobs are not completed")
}

func (s *ListenerSuite) TestActionErrorBecomesResponse() {
	s.Require().NoError(s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "fail"})))

	s.Require().Len(s.completer.calls, 1)
	s.Equal("provider rejected number", s.completer.calls[0].resp.Error)
}

func (s *ListenerSuite) TestPanicBecomesResponse() {
	s.Require().NoError(s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "explode"})))

	s.Require().Len(s.completer.calls, 1)
	s.Contains(s.completer.calls[0].resp.Error, "nil provider")
}

func (s *ListenerSuite) TestUnknownAction() {
	s.Require().NoError(s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "fax"})))

	s.Require().Len(s.completer.calls, 1)
	s.Contains(s.completer.calls[0].resp.Error, ErrUnknownAction.Error())
	s.Contains(s.completer.calls[0].resp.Error, "fax")
}

func (s *ListenerSuite) TestUndecodableIsAcknowledged() {
	err := s.listener.Handle(context.Background(), &transport.Record{Topic: "controller.sms", Value: []byte("{not json")})
	s.Require().NoError(err)
	s.Empty(s.completer.calls)
}

func (s *ListenerSuite) TestCompletionFailureIsReturned() {
	s.completer.err = errors.New("db down")
	err := s.listener.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "send"}))
	s.Require().Error(err)
}

func (s *ListenerSuite) TestMultiMode() {
	l := New("main", "controller.sms", s.completer, logger.Discard(), WithMode(Multi),
		WithAction("send", func(context.Context, *models.Job) (json.RawMessage, error) { return nil, nil }))

	s.Require().NoError(l.Handle(context.Background(), record(s.T(), models.Job{App: "main", UID: "j1", Action: "send"})))
	s.Require().Len(s.completer.calls, 1)
	s.True(s.completer.calls[0].multi)
}

func (s *ListenerSuite) TestRequire() {
	s.Require().NoError(s.listener.Require("send", "fail"))

	err := s.listener.Require("send", "fax", "telex")
	s.Require().ErrorIs(err, ErrMissingActions)
	s.Contains(err.Error(), "fax")
	s.Contains(err.Error(), "telex")
}

func (s *ListenerSuite) TestRegister() {
	s.ErrorIs(s.listener.Register("send", func(context.Context, *models.Job) (json.RawMessage, error) { return nil, nil }), ErrDuplicateAction)
	s.Error(s.listener.Register("", nil))
	s.Equal([]string{"explode", "fail", "send"}, s.listener.Actions())
}

// wire connects dispatcher, memory transport and listeners the way the
// process mains do.
func wire(t *testing.T, listeners ...func(c Completer) *Listener) (*dispatcher.Dispatcher, *memory.InMemoryStore, *transport.Memory) {
	t.Helper()
	fanout := &fanoutHandler{}
	mem := transport.NewMemory(fanout, logger.Discard())
	store := memory.NewInMemoryStore()
	d := dispatcher.New(store, mem, logger.Discard())
	for _, build := range listeners {
		fanout.handlers = append(fanout.handlers, build(d))
	}
	return d, store, mem
}

// fanoutHandler delivers each record to every listener, as separate consumer
// groups on the same topic would.
type fanoutHandler struct {
	handlers []transport.Handler
}

func (f *fanoutHandler) Handle(ctx context.Context, rec *transport.Record) error {
	var errs []error
	for _, h := range f.handlers {
		errs = append(errs, h.Handle(ctx, rec))
	}
	return errors.Join(errs...)
}

func TestEndToEnd_ForeignIdentityNeverExecutes(t *testing.T) {
	var mu sync.Mutex
	ran := map[string]int{}
	build := func(app string) func(Completer) *Listener {
		return func(c Completer) *Listener {
			return New(app, "controller.sms", c, logger.Discard(),
				WithAction("send", func(context.Context, *models.Job) (json.RawMessage, error) {
					mu.Lock()
					ran[app]++
					mu.Unlock()
					return nil, nil
				}))
		}
	}

	d, store, mem := wire(t, build("main"), build("secondary"))
	job, err := d.Dispatch(context.Background(), "controller.sms", &models.Job{
		App:     "main",
		Action:  "send",
		Payload: json.RawMessage(`{"to":"+15551234567"}`),
	})
	require.NoError(t, err)
	mem.Drain()

	assert.Equal(t, 1, ran["main"])
	assert.Zero(t, ran["secondary"])

	rec, err := store.FindByID(context.Background(), job.UID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
}

func TestEndToEnd_MultiListenerAccumulates(t *testing.T) {
	build := func(fail bool) func(Completer) *Listener {
		return func(c Completer) *Listener {
			return New("main", "controller.sms", c, logger.Discard(), WithMode(Multi),
				WithAction("send", func(context.Context, *models.Job) (json.RawMessage, error) {
					if fail {
						return nil, errors.New("carrier down")
					}
					return json.RawMessage(`"ok"`), nil
				}))
		}
	}

	d, store, mem := wire(t, build(false), build(true), build(false))
	job, err := d.Dispatch(context.Background(), "controller.sms", &models.Job{App: "main", Action: "send"})
	require.NoError(t, err)
	mem.Drain()

	rec, err := store.FindByID(context.Background(), job.UID)
	require.NoError(t, err)
	assert.Len(t, rec.Responses, 3)
	assert.Equal(t, models.StatusErrored, rec.Status)
}
