package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can run without a registry.
type Metrics struct {
	// Realtime client metrics
	RealtimeState      prometheus.Gauge
	RealtimeConnects   prometheus.Counter
	RealtimeReconnects prometheus.Counter
	RealtimeCloses     *prometheus.CounterVec
	RealtimeMessages   *prometheus.CounterVec
	RealtimeSendFailed prometheus.Counter

	// Generation session metrics
	GenerationActive   prometheus.Gauge
	GenerationSessions *prometheus.CounterVec
	GenerationFrames   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Dev server metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RealtimeState: f.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_realtime_state",
			Help: "Current realtime connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}),
		RealtimeConnects: f.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_realtime_connects_total",
			Help: "Total number of successfully opened realtime connections",
		}),
		RealtimeReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_realtime_reconnects_scheduled_total",
			Help: "Total number of reconnect attempts scheduled",
		}),
		RealtimeCloses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_realtime_closes_total",
			Help: "Realtime transport closures by close code",
		}, []string{"code"}),
		RealtimeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_realtime_messages_total",
			Help: "Realtime envelopes by direction and type",
		}, []string{"direction", "type"}),
		RealtimeSendFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_realtime_send_failures_total",
			Help: "Envelopes dropped because the transport was not open",
		}),

		GenerationActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_generation_active",
			Help: "Generation sessions currently streaming",
		}),
		GenerationSessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_generation_sessions_total",
			Help: "Generation sessions by terminal outcome",
		}, []string{"content_kind", "outcome"}),
		GenerationFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_generation_frames_total",
			Help: "Stream frames received by type",
		}, []string{"type"}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shepherd_generation_duration_seconds",
			Help:    "Time from start to terminal state",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"content_kind"}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_devserver_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shepherd_devserver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_devserver_ws_connections",
			Help: "Open WebSocket connections on the dev server",
		}),
	}
}

// SetRealtimeState records the numeric connection state
func (m *Metrics) SetRealtimeState(state int) {
	if m == nil {
		return
	}
	m.RealtimeState.Set(float64(state))
}

// IncRealtimeConnects counts a successful open
func (m *Metrics) IncRealtimeConnects() {
	if m == nil {
		return
	}
	m.RealtimeConnects.Inc()
}

// IncRealtimeReconnects counts a scheduled reconnect
func (m *Metrics) IncRealtimeReconnects() {
	if m == nil {
		return
	}
	m.RealtimeReconnects.Inc()
}

// RecordRealtimeClose counts a closure by code
func (m *Metrics) RecordRealtimeClose(code int) {
	if m == nil {
		return
	}
	m.RealtimeCloses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordRealtimeMessage counts an envelope; direction is "in" or "out"
func (m *Metrics) RecordRealtimeMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.RealtimeMessages.WithLabelValues(direction, msgType).Inc()
}

// IncRealtimeSendFailed counts a dropped outbound envelope
func (m *Metrics) IncRealtimeSendFailed() {
	if m == nil {
		return
	}
	m.RealtimeSendFailed.Inc()
}

// IncGenerationActive marks a session as streaming
func (m *Metrics) IncGenerationActive() {
	if m == nil {
		return
	}
	m.GenerationActive.Inc()
}

// DecGenerationActive marks a session as finished
func (m *Metrics) DecGenerationActive() {
	if m == nil {
		return
	}
	m.GenerationActive.Dec()
}

// RecordGenerationFrame counts a received frame
func (m *Metrics) RecordGenerationFrame(frameType string) {
	if m == nil {
		return
	}
	m.GenerationFrames.WithLabelValues(frameType).Inc()
}

// RecordGenerationOutcome counts a terminal outcome and its duration
func (m *Metrics) RecordGenerationOutcome(contentKind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationSessions.WithLabelValues(contentKind, outcome).Inc()
	m.GenerationDuration.WithLabelValues(contentKind).Observe(duration.Seconds())
}

// RecordHTTPRequest records a dev server HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments dev server WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements dev server WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
