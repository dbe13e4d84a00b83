package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100}

// Manager owns the NMS metrics and the registry they live on. It satisfies
// postprocess.Recorder.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         *prometheus.Registry

	// Per-run metrics, labelled by path (axis_aligned or rotated).
	runs       *prometheus.CounterVec
	candidates *prometheus.CounterVec
	passed     *prometheus.CounterVec
	detections *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	// Rejected inputs by error kind.
	errors *prometheus.CounterVec

	// HTTP metrics.
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ postprocess.Recorder = (*Manager)(nil)

// NewManager creates a Manager on a fresh registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nms",
		subsystem:        "postprocess",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		constLabels:      map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_total",
		Help:        "Total number of successful multiclass NMS runs",
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.candidates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "candidates_total",
		Help:        "Total number of candidate rows received",
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.passed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "threshold_passed_total",
		Help:        "Total number of (candidate, class) pairs above the score threshold",
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.detections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "detections_total",
		Help:        "Total number of detections returned",
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.suppressed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "suppressed_total",
		Help:        "Total number of passing pairs removed by suppression or the max_num cap",
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.latency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "latency_milliseconds",
		Help:        "Multiclass NMS latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"path"})

	m.errors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_total",
		Help:        "Total number of rejected runs by error kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint, method and status code",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// ObserveRun records the outcome of one successful run.
func (m *Manager) ObserveRun(stats postprocess.Stats, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	path := stats.Kind.String()
	m.runs.WithLabelValues(path).Inc()
	m.candidates.WithLabelValues(path).Add(float64(stats.Candidates))
	m.passed.WithLabelValues(path).Add(float64(stats.Passed))
	m.detections.WithLabelValues(path).Add(float64(stats.Detections))
	m.suppressed.WithLabelValues(path).Add(float64(max(stats.Suppressed(), 0)))
	m.latency.WithLabelValues(path).Observe(float64(elapsed) / float64(time.Millisecond))
}

// ObserveError counts a rejected run.
func (m *Manager) ObserveError(kind string) {
	if !m.enabled {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest counts one served request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method string, status int, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(float64(elapsed) / float64(time.Millisecond))
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
