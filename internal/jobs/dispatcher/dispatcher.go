// Package dispatcher hands jobs to the worker tier and keeps their audit trail.
//
// Dispatch persists a Pending audit record before emitting, so a job that
// asked to be audited is never emitted unaudited. Completion is reported back
// asynchronously by listeners through Complete or CompleteMulti; nothing here
// waits on a listener.
package dispatcher

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relay/internal/jobs/metrics"
	"relay/internal/jobs/models"
	"relay/internal/jobs/transport"
)

var (
	// ErrDispatchPersistence means the audit record could not be created and
	// the job was not emitted.
	ErrDispatchPersistence = errors.New("dispatch persistence failed")
	// ErrInvalidJob means the job or queue is unusable.
	ErrInvalidJob = errors.New("invalid job")
)

const tracerName = "relay/internal/jobs/dispatcher"

// AuditStore persists one AuditRecord per audited job. AppendResponse must be
// atomic in the store itself.
type AuditStore interface {
	Create(ctx context.Context, rec *models.AuditRecord) error
	SetResponse(ctx context.Context, id string, status models.Status, resp models.Response) error
	AppendResponse(ctx context.Context, id string, incoming models.Status, resp models.Response) (*models.AuditRecord, error)
	FindByID(ctx context.Context, id string) (*models.AuditRecord, error)
	ListByStatus(ctx context.Context, limit int, statuses ...models.Status) ([]*models.AuditRecord, error)
}

// Emitter hands records to the message transport without waiting for delivery.
type Emitter interface {
	Emit(ctx context.Context, rec *transport.Record)
}

// Dispatcher creates audit records, emits jobs and closes records on completion.
type Dispatcher struct {
	store   AuditStore
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics enables prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

func New(store AuditStore, emitter Emitter, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		emitter: emitter,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch audits job (unless logging is explicitly off), stamps its UID and
// emits it on queue. The returned job is the same value, now carrying the UID.
func (d *Dispatcher) Dispatch(ctx context.Context, queue string, job *models.Job) (*models.Job, error) {
	ctx, span := d.tracer.Start(ctx, "jobs.dispatch", trace.WithAttributes(
		attribute.String("job.queue", queue),
	))
	defer span.End()

	if queue == "" || job == nil || job.Action == "" {
		span.SetStatus(codes.Error, "invalid job")
		return nil, fmt.Errorf("%w: queue and action are required", ErrInvalidJob)
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	span.SetAttributes(attribute.String("job.action", job.Action), attribute.String("job.app", job.App))

	if job.LoggingEnabled() {
		serialized, err := json.Marshal(job)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "serialize job")
			return nil, fmt.Errorf("%w: serialize job: %w", ErrDispatchPersistence, err)
		}
		rec := &models.AuditRecord{
			Queue:  queue,
			Job:    serialized,
			Status: models.StatusPending,
		}
		if err := d.store.Create(ctx, rec); err != nil {
			if d.metrics != nil {
				d.metrics.IncPersistenceFailures()
			}
			d.logger.ErrorContext(ctx, "failed to create audit record, job not dispatched",
				"queue", queue,
				"action", job.Action,
				"error", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "audit record not created")
			return nil, fmt.Errorf("%w: %w", ErrDispatchPersistence, err)
		}
		job.UID = rec.ID
		span.SetAttributes(attribute.String("job.uid", job.UID))
	}

	value, err := json.Marshal(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode job")
		return nil, fmt.Errorf("encode job: %w", err)
	}

	var key []byte
	if job.UID != "" {
		key = []byte(job.UID)
	}
	d.emitter.Emit(ctx, &transport.Record{Topic: queue, Key: key, Value: value})
	if d.metrics != nil {
		d.metrics.IncDispatched(queue)
	}
	d.logger.DebugContext(ctx, "job dispatched",
		"queue", queue,
		"action", job.Action,
		"uid", job.UID,
	)
	return job, nil
}

// Complete records the single response of a job. Calling it twice for the
// same UID overwrites the first response.
func (d *Dispatcher) Complete(ctx context.Context, job *models.Job, resp models.Response) error {
	ctx, span := d.tracer.Start(ctx, "jobs.complete")
	defer span.End()

	job.Status = models.StatusOf(resp)
	if d.metrics != nil {
		d.metrics.IncCompletion("single", job.Status)
	}
	if !job.LoggingEnabled() {
		return nil
	}
	if job.UID == "" {
		return fmt.Errorf("%w: audited job without uid", ErrInvalidJob)
	}
	span.SetAttributes(attribute.String("job.uid", job.UID), attribute.String("job.status", job.Status.String()))

	if err := d.store.SetResponse(ctx, job.UID, job.Status, resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit update failed")
		return fmt.Errorf("complete job %s: %w", job.UID, err)
	}
	return nil
}

// CompleteMulti appends one of possibly many responses to a job's audit
// record. Safe to call concurrently from several listener instances.
func (d *Dispatcher) CompleteMulti(ctx context.Context, job *models.Job, resp models.Response) error {
	ctx, span := d.tracer.Start(ctx, "jobs.complete_multi")
	defer span.End()

	job.Status = models.StatusOf(resp)
	if !job.LoggingEnabled() {
		if d.metrics != nil {
			d.metrics.IncCompletion("multi", job.Status)
		}
		return nil
	}
	if job.UID == "" {
		return fmt.Errorf("%w: audited job without uid", ErrInvalidJob)
	}
	span.SetAttributes(attribute.String("job.uid", job.UID))

	rec, err := d.store.AppendResponse(ctx, job.UID, job.Status, resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit append failed")
		return fmt.Errorf("complete job %s: %w", job.UID, err)
	}
	if d.metrics != nil {
		d.metrics.IncCompletion("multi", rec.Status)
	}
	span.SetAttributes(attribute.String("job.status", rec.Status.String()), attribute.Int("job.responses", len(rec.Responses)))
	return nil
}

// Find returns the audit record of a dispatched job.
func (d *Dispatcher) Find(ctx context.Context, uid string) (*models.AuditRecord, error) {
	return d.store.FindByID(ctx, uid)
}

// List returns recent audit records in any of statuses.
func (d *Dispatcher) List(ctx context.Context, limit int, statuses ...models.Status) ([]*models.AuditRecord, error) {
	return d.store.ListByStatus(ctx, limit, statuses...)
}
