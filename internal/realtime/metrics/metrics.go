package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for sockets and cross-instance propagation.
type Metrics struct {
	ConnectedSockets prometheus.Gauge
	ConnectedUsers   prometheus.Gauge
	Handshakes       *prometheus.CounterVec
	BusMessages      *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DroppedFrames    prometheus.Counter
	PublishFailures  prometheus.Counter
}

// New creates a new Metrics instance with all realtime metrics registered.
func New() *Metrics {
	return &Metrics{
		ConnectedSockets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_realtime_connected_sockets",
			Help: "Number of websocket connections open on this instance",
		}),
		ConnectedUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_realtime_connected_users",
			Help: "Number of distinct authenticated users connected to this instance",
		}),
		Handshakes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_realtime_handshakes_total",
			Help: "Total number of socket handshakes, by outcome (guest, authenticated, rejected, stale)",
		}, []string{"outcome"}),
		BusMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_realtime_bus_messages_total",
			Help: "Total number of propagated events received from the bus, by kind",
		}, []string{"kind"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_realtime_local_deliveries_total",
			Help: "Total number of local sockets affected by propagated events, by kind",
		}, []string{"kind"}),
		DroppedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_realtime_dropped_frames_total",
			Help: "Total number of frames dropped because a socket was closed or its buffer was full",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_realtime_publish_failures_total",
			Help: "Total number of events that could not be published to the bus",
		}),
	}
}

func (m *Metrics) SetConnected(sockets, users int) {
	m.ConnectedSockets.Set(float64(sockets))
	m.ConnectedUsers.Set(float64(users))
}

func (m *Metrics) IncHandshake(outcome string) {
	m.Handshakes.WithLabelValues(outcome).Inc()
}

// ObserveBusMessage records one received event and how many local sockets it reached.
func (m *Metrics) ObserveBusMessage(kind string, delivered int) {
	m.BusMessages.WithLabelValues(kind).Inc()
	m.Deliveries.WithLabelValues(kind).Add(float64(delivered))
}

func (m *Metrics) IncDroppedFrames() {
	m.DroppedFrames.Inc()
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}
