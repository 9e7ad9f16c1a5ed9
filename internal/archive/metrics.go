package archive

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricArchiveRecordsTotal    = "archive_records_total"
	MetricArchiveFallbacksTotal  = "archive_fallbacks_total"
	MetricArchiveUploadDuration  = "archive_upload_duration_seconds"
	MetricArchiveUploadsInFlight = "archive_uploads_in_flight"
)

// Outcome labels for archive_records_total.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomeFallback     = "fallback"
	OutcomeLost         = "lost"
)

// Metrics contains Prometheus metrics for the archive client.
// All operations are thread-safe.
type Metrics struct {
	recordsTotal    *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	uploadsInFlight prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricArchiveRecordsTotal,
				Help: "Total number of log records processed by type and terminal outcome",
			},
			[]string{"type", "outcome"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricArchiveFallbacksTotal,
				Help: "Total number of records written to the fallback sink by type and reason",
			},
			[]string{"type", "reason"},
		),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricArchiveUploadDuration,
				Help:    "Duration of object store upload attempts in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"type"},
		),
		uploadsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricArchiveUploadsInFlight,
				Help: "Number of archive attempts currently dispatched and not yet terminal",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recordsTotal,
		m.fallbacksTotal,
		m.uploadDuration,
		m.uploadsInFlight,
	}
}

func (m *Metrics) incRecords(t RecordType, outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) incFallback(t RecordType, reason Reason) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(string(t), string(reason)).Inc()
}

func (m *Metrics) observeUpload(t RecordType, seconds float64) {
	if m == nil {
		return
	}
	m.uploadDuration.WithLabelValues(string(t)).Observe(seconds)
}

func (m *Metrics) addInFlight(delta float64) {
	if m == nil {
		return
	}
	m.uploadsInFlight.Add(delta)
}
