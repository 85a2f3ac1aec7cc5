package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters for the realtime coordinator.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.CommandHandled("send-message")
type Metrics struct {
	// ActiveConnections is the number of live websocket connections.
	ActiveConnections prometheus.Gauge

	// CommandCounter counts inbound realtime commands.
	// Labels: event
	CommandCounter *prometheus.CounterVec

	// RejectedCounter counts commands that were dropped or answered with
	// channel-error.
	// Labels: event, reason
	RejectedCounter *prometheus.CounterVec

	// CommandDuration measures time spent handling one command in the loop.
	// Labels: event
	CommandDuration *prometheus.HistogramVec

	// DroppedFrames counts outbound frames discarded because a client's
	// send buffer was full.
	DroppedFrames prometheus.Counter

	// PersistenceCounter counts persistence jobs.
	// Labels: op, status (success|error|dropped)
	PersistenceCounter *prometheus.CounterVec

	// PersistenceQueueDepth is the number of queued persistence jobs.
	PersistenceQueueDepth prometheus.Gauge

	// PreviewCounter counts link preview lookups.
	// Labels: result (hit|fetched|none|error)
	PreviewCounter *prometheus.CounterVec

	// UploadCounter counts HTTP uploads.
	// Labels: status (success|rejected|error)
	UploadCounter *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxchat_active_connections",
			Help: "Number of live realtime connections",
		}),
		CommandCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_commands_total",
			Help: "Inbound realtime commands by event name",
		}, []string{"event"}),
		RejectedCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_commands_rejected_total",
			Help: "Rejected realtime commands by event name and reason",
		}, []string{"event", "reason"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxchat_command_duration_seconds",
			Help:    "Time spent handling a realtime command",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"event"}),
		DroppedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "voxchat_dropped_frames_total",
			Help: "Outbound frames dropped because the client buffer was full",
		}),
		PersistenceCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_persistence_jobs_total",
			Help: "Persistence jobs by operation and status",
		}, []string{"op", "status"}),
		PersistenceQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxchat_persistence_queue_depth",
			Help: "Queued persistence jobs",
		}),
		PreviewCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_link_previews_total",
			Help: "Link preview lookups by result",
		}, []string{"result"}),
		UploadCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxchat_uploads_total",
			Help: "File uploads by status",
		}, []string{"status"}),
	}
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) CommandHandled(event string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandCounter.WithLabelValues(event).Inc()
	m.CommandDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

func (m *Metrics) CommandRejected(event, reason string) {
	if m == nil {
		return
	}
	m.RejectedCounter.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.DroppedFrames.Inc()
}

func (m *Metrics) PersistenceResult(op, status string) {
	if m == nil {
		return
	}
	m.PersistenceCounter.WithLabelValues(op, status).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.PersistenceQueueDepth.Set(float64(n))
}

func (m *Metrics) Preview(result string) {
	if m == nil {
		return
	}
	m.PreviewCounter.WithLabelValues(result).Inc()
}

func (m *Metrics) Upload(status string) {
	if m == nil {
		return
	}
	m.UploadCounter.WithLabelValues(status).Inc()
}
