package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the signaling coordinator
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Presence Metrics
	doctorsOnline           prometheus.Gauge
	presenceBroadcastsTotal *prometheus.CounterVec

	// Queue Relay Metrics
	queueForwardsTotal *prometheus.CounterVec
	queueDropsTotal    *prometheus.CounterVec

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callsDuration    prometheus.Histogram
	callsFailedTotal *prometheus.CounterVec
	signalsRelayed   prometheus.Counter

	// Consultation Room Metrics
	roomsActive       prometheus.Gauge
	roomMessagesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"event", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		doctorsOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "doctors_online",
				Help:        "Number of doctors with a live presence entry",
				ConstLabels: labels,
			},
		),
		presenceBroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "presence_broadcasts_total",
				Help:        "Total number of doctor status broadcasts",
				ConstLabels: labels,
			},
			[]string{"status"},
		),

		queueForwardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "queue_forwards_total",
				Help:        "Total number of queue notices forwarded to a doctor connection",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		queueDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "queue_drops_total",
				Help:        "Total number of queue notices dropped because the doctor was unreachable",
				ConstLabels: labels,
			},
			[]string{"event"},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of call sessions by terminal outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of non-terminal call sessions",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Call session duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		callsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of failed call operations",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		signalsRelayed: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "signals_relayed_total",
				Help:        "Total number of negotiation payloads relayed between call parties",
				ConstLabels: labels,
			},
		),

		roomsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "consultation_rooms_active",
				Help:        "Number of consultation rooms with at least one participant",
				ConstLabels: labels,
			},
		),
		roomMessagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "consultation_messages_total",
				Help:        "Total number of side-channel messages broadcast in consultation rooms",
				ConstLabels: labels,
			},
		),
	}

	return m
}

// GetRegistry returns the private Prometheus registry for the metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// ConnectionOpened increments the active WebSocket connection gauge
func (m *Metrics) ConnectionOpened() {
	m.websocketConnections.Inc()
}

// ConnectionClosed decrements the active WebSocket connection gauge
func (m *Metrics) ConnectionClosed() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(event, direction string) {
	m.websocketMessagesTotal.WithLabelValues(event, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Presence Metrics Methods

// SetDoctorsOnline sets the number of doctors with a live presence entry
func (m *Metrics) SetDoctorsOnline(count int) {
	m.doctorsOnline.Set(float64(count))
}

// RecordPresenceBroadcast records a doctor status broadcast
func (m *Metrics) RecordPresenceBroadcast(status string) {
	m.presenceBroadcastsTotal.WithLabelValues(status).Inc()
}

// Queue Relay Metrics Methods

// RecordQueueForward records a queue notice delivered to a doctor connection
func (m *Metrics) RecordQueueForward(event string) {
	m.queueForwardsTotal.WithLabelValues(event).Inc()
}

// RecordQueueDrop records a queue notice dropped because the doctor was unreachable
func (m *Metrics) RecordQueueDrop(event string) {
	m.queueDropsTotal.WithLabelValues(event).Inc()
}

// Call Metrics Methods

// RecordCallOutcome records a call session reaching a terminal state
func (m *Metrics) RecordCallOutcome(outcome string) {
	m.callsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveCalls sets the number of non-terminal call sessions
func (m *Metrics) SetActiveCalls(count int) {
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the duration of a finished call session
func (m *Metrics) RecordCallDuration(duration time.Duration) {
	m.callsDuration.Observe(duration.Seconds())
}

// RecordCallFailure records a failed call operation
func (m *Metrics) RecordCallFailure(reason string) {
	m.callsFailedTotal.WithLabelValues(reason).Inc()
}

// RecordSignalRelayed records one relayed negotiation payload
func (m *Metrics) RecordSignalRelayed() {
	m.signalsRelayed.Inc()
}

// Consultation Room Metrics Methods

// SetActiveRooms sets the number of consultation rooms with participants
func (m *Metrics) SetActiveRooms(count int) {
	m.roomsActive.Set(float64(count))
}

// RecordRoomMessage records one broadcast side-channel message
func (m *Metrics) RecordRoomMessage() {
	m.roomMessagesTotal.Inc()
}
