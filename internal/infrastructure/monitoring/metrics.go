package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Capture metrics
	CapturesTotal    *prometheus.CounterVec
	CaptureDuration  prometheus.Histogram
	CaptureResponses *prometheus.CounterVec
	CaptureWindows   prometheus.Histogram

	// Restore metrics
	RestoresTotal  *prometheus.CounterVec
	WindowsCreated prometheus.Counter
	PendingWindows prometheus.Gauge

	// Store metrics
	StoreOps       *prometheus.CounterVec
	StoreDuration  *prometheus.HistogramVec
	BackupFailures prometheus.Counter
	SessionBytes   prometheus.Gauge

	// WebSocket metrics
	WSConnections    prometheus.Gauge
	WSMessages       *prometheus.CounterVec
	MailboxDropped   prometheus.Counter
	MailboxDelivered prometheus.Counter

	// Host shell metrics
	ShellLaunches *prometheus.CounterVec
	ShellBreaker  prometheus.Gauge

	startTime time.Time

	// Snapshot for the JSON status API
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON status API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	Captures          int64   `json:"captures"`
	CaptureTimeouts   int64   `json:"capture_timeouts"`
	Restores          int64   `json:"restores"`
	ActiveConnections int64   `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotexit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotexit_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotexit_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Capture metrics
		CapturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_captures_total",
				Help: "Capture rounds by outcome",
			},
			[]string{"outcome"},
		),
		CaptureDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotexit_capture_duration_seconds",
				Help:    "Time from capture request broadcast to assembled session",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 4, 5, 7.5, 10},
			},
		),
		CaptureResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_capture_responses_total",
				Help: "Capture responses by verdict",
			},
			[]string{"verdict"},
		),
		CaptureWindows: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotexit_capture_windows",
				Help:    "Number of windows contributing to a capture",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),

		// Restore metrics
		RestoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_restores_total",
				Help: "Restore operations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		WindowsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hotexit_restore_windows_created_total",
				Help: "Secondary windows opened by multi-window restore",
			},
		),
		PendingWindows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotexit_pending_windows",
				Help: "Windows with staged restore state not yet completed",
			},
		),

		// Store metrics
		StoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_store_operations_total",
				Help: "Session store operations by type and status",
			},
			[]string{"op", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotexit_store_duration_seconds",
				Help:    "Session store operation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		BackupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hotexit_store_backup_failures_total",
				Help: "Failed attempts to copy the previous session to the backup path",
			},
		),
		SessionBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotexit_session_bytes",
				Help: "Size of the last written session file",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotexit_ws_connections",
				Help: "Number of connected window event streams",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "topic"},
		),
		MailboxDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hotexit_ws_mailbox_dropped_total",
				Help: "Held messages discarded because a mailbox was full",
			},
		),
		MailboxDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hotexit_ws_mailbox_delivered_total",
				Help: "Held messages delivered when a window connected",
			},
		),

		// Host shell metrics
		ShellLaunches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotexit_shell_launches_total",
				Help: "Window launch requests sent to the host shell",
			},
			[]string{"status"},
		),
		ShellBreaker: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotexit_shell_breaker_state",
				Help: "Host shell circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hotexit_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCapture records a finished capture round
func (m *Metrics) RecordCapture(outcome string, windows int, duration time.Duration) {
	m.CapturesTotal.WithLabelValues(outcome).Inc()
	m.CaptureDuration.Observe(duration.Seconds())
	if windows > 0 {
		m.CaptureWindows.Observe(float64(windows))
	}

	m.mu.Lock()
	m.snapshot.Captures++
	if outcome == "timeout" || outcome == "partial" {
		m.snapshot.CaptureTimeouts++
	}
	m.mu.Unlock()
}

// RecordCaptureResponse records the verdict for one incoming capture response
func (m *Metrics) RecordCaptureResponse(verdict string) {
	m.CaptureResponses.WithLabelValues(verdict).Inc()
}

// RecordRestore records a restore operation
func (m *Metrics) RecordRestore(mode, outcome string) {
	m.RestoresTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == "success" {
		m.mu.Lock()
		m.snapshot.Restores++
		m.mu.Unlock()
	}
}

// AddWindowsCreated counts windows opened by multi-window restore
func (m *Metrics) AddWindowsCreated(n int) {
	m.WindowsCreated.Add(float64(n))
}

// SetPendingWindows sets the number of windows awaiting restore completion
func (m *Metrics) SetPendingWindows(n int) {
	m.PendingWindows.Set(float64(n))
}

// RecordStoreOp records a session store operation
func (m *Metrics) RecordStoreOp(op, status string, duration time.Duration) {
	m.StoreOps.WithLabelValues(op, status).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// IncBackupFailures counts a failed backup copy
func (m *Metrics) IncBackupFailures() {
	m.BackupFailures.Inc()
}

// SetSessionBytes records the size of the last written session
func (m *Metrics) SetSessionBytes(n int) {
	m.SessionBytes.Set(float64(n))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, topic string) {
	m.WSMessages.WithLabelValues(direction, topic).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// IncMailboxDropped counts a held message evicted from a full mailbox
func (m *Metrics) IncMailboxDropped() {
	m.MailboxDropped.Inc()
}

// AddMailboxDelivered counts held messages flushed on connect
func (m *Metrics) AddMailboxDelivered(n int) {
	m.MailboxDelivered.Add(float64(n))
}

// RecordShellLaunch records a host shell launch attempt
func (m *Metrics) RecordShellLaunch(status string) {
	m.ShellLaunches.WithLabelValues(status).Inc()
}

// SetShellBreakerState publishes the launcher circuit breaker state
func (m *Metrics) SetShellBreakerState(state int) {
	m.ShellBreaker.Set(float64(state))
}

// Snapshot returns current values for the JSON status API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
