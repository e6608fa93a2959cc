// Package listener consumes jobs for one topic and one app identity and runs
// them against a fixed table of actions.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"relay/internal/jobs/models"
	"relay/internal/jobs/transport"
)

var (
	// ErrUnknownAction is reported in the response of a job naming an action
	// the listener does not have.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingActions is returned by Require when the action table is incomplete.
	ErrMissingActions = errors.New("missing actions")
	// ErrDuplicateAction is returned by Register for a name already taken.
	ErrDuplicateAction = errors.New("duplicate action")
)

// Action executes one job. The returned data becomes the response payload.
type Action func(ctx context.Context, job *models.Job) (json.RawMessage, error)

// Completer records the outcome of a delivery.
type Completer interface {
	Complete(ctx context.Context, job *models.Job, resp models.Response) error
	CompleteMulti(ctx context.Context, job *models.Job, resp models.Response) error
}

// GateCounter counts deliveries dropped for carrying another app identity.
type GateCounter interface {
	IncGateRejection(topic string)
}

// Mode selects how a delivery is completed.
type Mode int

const (
	// Single completes with Complete; the last response overwrites earlier ones.
	Single Mode = iota
	// Multi completes with CompleteMulti, for topics consumed by several listeners.
	Multi
)

func (m Mode) String() string {
	if m == Multi {
		return "multi"
	}
	return "single"
}

// Listener is bound to exactly one topic and one app identity.
type Listener struct {
	app       string
	topic     string
	mode      Mode
	completer Completer
	logger    *slog.Logger
	gate      GateCounter

	mu      sync.RWMutex
	actions map[string]Action
}

// Option configures a Listener.
type Option func(*Listener)

// WithMode selects single or multi completion. Single is the default.
func WithMode(m Mode) Option {
	return func(l *Listener) {
		l.mode = m
	}
}

// WithGateCounter counts app gate rejections.
func WithGateCounter(c GateCounter) Option {
	return func(l *Listener) {
		l.gate = c
	}
}

// WithAction registers an action at construction. Constructor options panic
// on duplicates since they are programming errors.
func WithAction(name string, action Action) Option {
	return func(l *Listener) {
		if err := l.Register(name, action); err != nil {
			panic(err)
		}
	}
}

func New(app, topic string, completer Completer, logger *slog.Logger, opts ...Option) *Listener {
	l := &Listener{
		app:       app,
		topic:     topic,
		completer: completer,
		logger:    logger,
		actions:   make(map[string]Action),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Topic is the transport topic the listener consumes.
func (l *Listener) Topic() string { return l.topic }

// App is the identity jobs must carry to be executed.
func (l *Listener) App() string { return l.app }

// Register adds an action to the table.
func (l *Listener) Register(name string, action Action) error {
	if name == "" || action == nil {
		return fmt.Errorf("register action %q: name and handler are required", name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.actions[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	l.actions[name] = action
	return nil
}

// Actions lists registered action names, sorted.
func (l *Listener) Actions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.actions))
	for name := range l.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require fails when any of names has no registered action. Call it at
// startup with every action the deployment dispatches to this topic.
func (l *Listener) Require(names ...string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var missing []string
	for _, name := range names {
		if _, ok := l.actions[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w on topic %s: %v", ErrMissingActions, l.topic, missing)
	}
	return nil
}

// Handle is a transport.Handler. It always acknowledges: undecodable records
// and foreign-app jobs are dropped, execution failures are recorded in the
// response. Only a failed completion is returned, so the transport may retry.
func (l *Listener) Handle(ctx context.Context, rec *transport.Record) error {
	var job models.Job
	if err := json.Unmarshal(rec.Value, &job); err != nil {
		l.logger.ErrorContext(ctx, "undecodable job, dropping",
			"topic", rec.Topic,
			"key", string(rec.Key),
			"error", err,
		)
		return nil
	}

	if job.App != l.app {
		if l.gate != nil {
			l.gate.IncGateRejection(l.topic)
		}
		l.logger.DebugContext(ctx, "job for another app, ignoring",
			"topic", l.topic,
			"app", job.App,
			"listener_app", l.app,
			"uid", job.UID,
		)
		return nil
	}

	resp := l.execute(ctx, &job)

	var err error
	if l.mode == Multi {
		err = l.completer.CompleteMulti(ctx, &job, resp)
	} else {
		err = l.completer.Complete(ctx, &job, resp)
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to complete job",
			"topic", l.topic,
			"action", job.Action,
			"uid", job.UID,
			"mode", l.mode.String(),
			"error", err,
		)
		return err
	}
	return nil
}

func (l *Listener) execute(ctx context.Context, job *models.Job) (resp models.Response) {
	l.mu.RLock()
	action, ok := l.actions[job.Action]
	l.mu.RUnlock()
	if !ok {
		l.logger.WarnContext(ctx, "job names unknown action",
			"topic", l.topic,
			"action", job.Action,
			"uid", job.UID,
		)
		return models.Response{Error: fmt.Sprintf("%s: %s", ErrUnknownAction, job.Action)}
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "action panicked",
				"topic", l.topic,
				"action", job.Action,
				"uid", job.UID,
				"panic", r,
			)
			resp = models.Response{Error: fmt.Sprintf("action %s panicked: %v", job.Action, r)}
		}
	}()

	data, err := action(ctx, job)
	if err != nil {
		l.logger.WarnContext(ctx, "action failed",
			"topic", l.topic,
			"action", job.Action,
			"uid", job.UID,
			"error", err,
		)
		return models.Response{Error: err.Error(), Data: data}
	}
	return models.Response{Data: data}
}
