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

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Render metrics
	RendersTotal   *prometheus.CounterVec
	RenderDuration *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	TeardownErrors *prometheus.CounterVec
	DanglingTimers prometheus.Counter

	// Sub-resource metrics
	SubRequests        *prometheus.CounterVec
	SubRequestRetries  prometheus.Counter
	SubRequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current render totals for the health endpoint.
type Snapshot struct {
	TotalRenders  int64   `json:"total_renders"`
	FailedRenders int64   `json:"failed_renders"`
	TotalDuration float64 `json:"total_duration_seconds"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssr_http_requests_total",
				Help: "Total number of gateway HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssr_http_request_duration_seconds",
				Help:    "Gateway HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssr_http_request_size_bytes",
				Help:    "Gateway HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssr_http_response_size_bytes",
				Help:    "Gateway HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		RendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssr_renders_total",
				Help: "Total number of renders by outcome",
			},
			[]string{"outcome"},
		),
		RenderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssr_render_duration_seconds",
				Help:    "Render duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssr_render_stage_failures_total",
				Help: "Render failures by the stage that failed",
			},
			[]string{"stage"},
		),
		TeardownErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssr_teardown_errors_total",
				Help: "Errors raised while closing render resources",
			},
			[]string{"resource"},
		),
		DanglingTimers: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ssr_dangling_timers_total",
				Help: "Renders whose timers fired after teardown",
			},
		),

		SubRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ssr_subrequests_total",
				Help: "Script downloads by cache provenance",
			},
			[]string{"provenance"},
		),
		SubRequestRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ssr_subrequest_retries_total",
				Help: "Failed script download attempts that were considered for retry",
			},
		),
		SubRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ssr_subrequest_duration_seconds",
				Help:    "Script download duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"outcome"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ssr_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a gateway HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRender records a finished render. outcome is "success" or "failure".
func (m *Metrics) RecordRender(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(outcome).Inc()
	m.RenderDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRenders++
	m.snapshot.TotalDuration += duration.Seconds()
	if outcome != "success" {
		m.snapshot.FailedRenders++
	}
	m.mu.Unlock()
}

// RecordStageFailure records the stage a render failed in.
func (m *Metrics) RecordStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordTeardownError records a failing close of a render resource.
func (m *Metrics) RecordTeardownError(resource string) {
	if m == nil {
		return
	}
	m.TeardownErrors.WithLabelValues(resource).Inc()
}

// IncDanglingTimers records a render whose timers outlived it.
func (m *Metrics) IncDanglingTimers() {
	if m == nil {
		return
	}
	m.DanglingTimers.Inc()
}

// RecordSubRequest records a finished script download.
func (m *Metrics) RecordSubRequest(provenance, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if provenance != "" {
		m.SubRequests.WithLabelValues(provenance).Inc()
	}
	m.SubRequestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncSubRequestRetries records a failed attempt passed to the retry policy.
func (m *Metrics) IncSubRequestRetries() {
	if m == nil {
		return
	}
	m.SubRequestRetries.Inc()
}

// GetSnapshot returns current render totals.
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
