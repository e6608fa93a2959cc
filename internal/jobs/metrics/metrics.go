package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"relay/internal/jobs/models"
)

// Metrics provides observability for job dispatch, completion and listeners.
type Metrics struct {
	Dispatched          *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	Completions         *prometheus.CounterVec
	EmitFailures        prometheus.Counter
	GateRejections      *prometheus.CounterVec
}

// New creates a new Metrics instance with all job metrics registered.
func New() *Metrics {
	return &Metrics{
		Dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_jobs_dispatched_total",
			Help: "Total number of jobs emitted on the transport, by queue",
		}, []string{"queue"}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_jobs_dispatch_persistence_failures_total",
			Help: "Total number of dispatches aborted because the audit record could not be created",
		}),
		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_jobs_completions_total",
			Help: "Total number of job completions, by mode and resulting status",
		}, []string{"mode", "status"}),
		EmitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_jobs_emit_failures_total",
			Help: "Total number of records the transport failed to deliver to the broker",
		}),
		GateRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_jobs_listener_gate_rejections_total",
			Help: "Total number of deliveries dropped because job.app did not match the listener",
		}, []string{"topic"}),
	}
}

// IncDispatched records one emitted job.
func (m *Metrics) IncDispatched(queue string) {
	m.Dispatched.WithLabelValues(queue).Inc()
}

// IncPersistenceFailures records one aborted dispatch.
func (m *Metrics) IncPersistenceFailures() {
	m.PersistenceFailures.Inc()
}

// IncCompletion records one completion. Mode is "single" or "multi".
func (m *Metrics) IncCompletion(mode string, status models.Status) {
	m.Completions.WithLabelValues(mode, status.String()).Inc()
}

// IncEmitFailures records one failed delivery to the broker.
func (m *Metrics) IncEmitFailures() {
	m.EmitFailures.Inc()
}

// IncGateRejection records one delivery dropped by a listener's app gate.
func (m *Metrics) IncGateRejection(topic string) {
	m.GateRejections.WithLabelValues(topic).Inc()
}
