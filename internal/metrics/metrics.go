// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Connection metrics
	ClientConnected()
	ClientDisconnected()

	// Admission metrics
	PeerAdmitted()
	AdmissionRejected(reason string)
	PeerDeparted(cause string, connected time.Duration)

	// Message metrics
	MessageReceived(messageType string, sizeBytes int)
	MessageDropped(reason string)
	MessageSent(messageType string, sizeBytes, recipients int)
	SendFailed(messageType string)

	// Canvas state
	PeersActive(n int)
	EventLogSize(n int)

	// Handler returns an HTTP handler for metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	registry *prometheus.Registry

	// Connection metrics
	activeConnections prometheus.Gauge
	connections       prometheus.Counter

	// Admission metrics
	activePeers prometheus.Gauge
	admissions  prometheus.Counter
	rejections  *prometheus.CounterVec
	departures  *prometheus.CounterVec
	sessionTime prometheus.Histogram

	// Message metrics
	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	sendFailures     *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec

	// Canvas state
	eventLogSize prometheus.Gauge
}

// NewPrometheusCollector creates a new PrometheusCollector with its own registry
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		// Connection metrics
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sketchhive_active_connections",
			Help: "Number of open WebSocket connections",
		}),

		connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchhive_connections_total",
			Help: "Total number of WebSocket connections accepted",
		}),

		// Admission metrics
		activePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sketchhive_active_peers",
			Help: "Number of admitted peers",
		}),

		admissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchhive_admissions_total",
			Help: "Total number of successful handshakes",
		}),

		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_admission_rejections_total",
				Help: "Total number of refused handshakes",
			},
			[]string{"reason"},
		),

		departures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_peer_departures_total",
				Help: "Total number of peers removed from the canvas",
			},
			[]string{"cause"},
		),

		sessionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sketchhive_peer_session_seconds",
			Help:    "Time a peer spent on the canvas",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
		}),

		// Message metrics
		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_messages_received_total",
				Help: "Total number of WebSocket messages received",
			},
			[]string{"message_type"},
		),

		messagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_messages_dropped_total",
				Help: "Total number of inbound messages ignored",
			},
			[]string{"reason"},
		),

		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_messages_sent_total",
				Help: "Total number of WebSocket frames queued for delivery",
			},
			[]string{"message_type"},
		),

		sendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sketchhive_send_failures_total",
				Help: "Total number of per-peer send failures during fan-out",
			},
			[]string{"message_type"},
		),

		messageSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sketchhive_message_size_bytes",
				Help:    "Size of WebSocket messages in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
			},
			[]string{"message_type", "direction"},
		),

		// Canvas state
		eventLogSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sketchhive_event_log_size",
			Help: "Number of drawing events in the shared log",
		}),
	}
}

// ClientConnected records a new connection
func (c *PrometheusCollector) ClientConnected() {
	c.connections.Inc()
	c.activeConnections.Inc()
}

// ClientDisconnected records a closed connection
func (c *PrometheusCollector) ClientDisconnected() {
	c.activeConnections.Dec()
}

// PeerAdmitted records a successful handshake
func (c *PrometheusCollector) PeerAdmitted() {
	c.admissions.Inc()
}

// AdmissionRejected records a refused handshake
func (c *PrometheusCollector) AdmissionRejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// PeerDeparted records a peer leaving the canvas after connected
func (c *PrometheusCollector) PeerDeparted(cause string, connected time.Duration) {
	c.departures.WithLabelValues(cause).Inc()
	c.sessionTime.Observe(connected.Seconds())
}

// MessageReceived records an inbound message
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "received").Observe(float64(sizeBytes))
}

// MessageDropped records an ignored inbound message
func (c *PrometheusCollector) MessageDropped(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

// MessageSent records an outbound frame delivered to recipients peers
func (c *PrometheusCollector) MessageSent(messageType string, sizeBytes, recipients int) {
	c.messagesSent.WithLabelValues(messageType).Add(float64(recipients))
	c.messageSize.WithLabelValues(messageType, "sent").Observe(float64(sizeBytes))
}

// SendFailed records a per-peer send failure
func (c *PrometheusCollector) SendFailed(messageType string) {
	c.sendFailures.WithLabelValues(messageType).Inc()
}

// PeersActive records the current number of peers
func (c *PrometheusCollector) PeersActive(n int) {
	c.activePeers.Set(float64(n))
}

// EventLogSize records the current length of the drawing log
func (c *PrometheusCollector) EventLogSize(n int) {
	c.eventLogSize.Set(float64(n))
}

// Registerer exposes the collector's registry for other instrumentation
func (c *PrometheusCollector) Registerer() prometheus.Registerer {
	return c.registry
}

// Handler returns an HTTP handler for metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
