package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP metric names exported on /metrics.
const (
	MetricHTTPRequestDuration   = "portal_http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "portal_http_requests_total"
	MetricHTTPRequestSizeBytes  = "portal_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "portal_http_response_size_bytes"
)

// requestLabels are bounded: path is a route pattern, never a raw URL.
var requestLabels = []string{"method", "path", "status"}

// sizeBuckets spans 100 B to 10 MB.
var sizeBuckets = prometheus.ExponentialBuckets(100, 10, 6)

// Metrics holds the request collectors used by HTTPMetrics.
type Metrics struct {
	duration     *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	requestSize  *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
}

func histogram(name, help string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, requestLabels)
}

// NewMetrics builds unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		duration: histogram(MetricHTTPRequestDuration,
			"Portal HTTP request latency in seconds",
			[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Portal HTTP requests served",
		}, requestLabels),
		requestSize:  histogram(MetricHTTPRequestSizeBytes, "Portal HTTP request body size in bytes", sizeBuckets),
		responseSize: histogram(MetricHTTPResponseSizeBytes, "Portal HTTP response body size in bytes", sizeBuckets),
	}
}

// Register adds every collector to reg, stopping at the first failure.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records one completed request. path must already be a
// route label.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.duration.With(labels).Observe(duration)
	m.requests.With(labels).Inc()
	m.requestSize.With(labels).Observe(float64(requestSize))
	m.responseSize.With(labels).Observe(float64(responseSize))
}

// Collectors lists the collectors in registration order.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.duration, m.requests, m.requestSize, m.responseSize}
}
