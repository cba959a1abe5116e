// Package metrics exposes conversion counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one server instance on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	RecordsTotal       *prometheus.CounterVec
	TracksTotal        prometheus.Counter
	UploadsTotal       *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sonde_conversions_total",
			Help: "Conversion sessions by final status",
		}, []string{"status"}),
		ConversionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonde_conversion_duration_ms",
			Help:    "Conversion duration in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 20000},
		}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sonde_records_total",
			Help: "Position records by filter outcome",
		}, []string{"outcome"}),
		TracksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sonde_tracks_total",
			Help: "Exported vehicle tracks",
		}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sonde_uploads_total",
			Help: "Uploaded documents by detected kind",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sonde_active_sessions",
			Help: "Conversion sessions currently held in memory",
		}),
	}

	m.registry.MustRegister(
		m.ConversionsTotal,
		m.ConversionDuration,
		m.RecordsTotal,
		m.TracksTotal,
		m.UploadsTotal,
		m.ActiveSessions,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRecords adds per-outcome record counts from one run.
func (m *Metrics) ObserveRecords(accepted, malformed, outsideVolume, outsideWindow, untimed int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.RecordsTotal.WithLabelValues("malformed").Add(float64(malformed))
	m.RecordsTotal.WithLabelValues("outside_volume").Add(float64(outsideVolume))
	m.RecordsTotal.WithLabelValues("outside_window").Add(float64(outsideWindow))
	m.RecordsTotal.WithLabelValues("untimed").Add(float64(untimed))
}

// ObserveConversion records a finished session.
func (m *Metrics) ObserveConversion(status string, durationMs float64, tracks int) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(status).Inc()
	m.ConversionDuration.Observe(durationMs)
	m.TracksTotal.Add(float64(tracks))
}

// ObserveUpload counts one stored document.
func (m *Metrics) ObserveUpload(kind string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind).Inc()
}

// SetActiveSessions updates the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
