package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming loader
type Metrics struct {
	// Catalog metrics
	SequencesDiscovered prometheus.Gauge
	CatalogCacheHits    prometheus.Counter
	CatalogCacheMisses  prometheus.Counter

	// Planning metrics
	ProbeDuration   prometheus.Histogram
	PackagesPlanned prometheus.Gauge
	TotalFrames     prometheus.Gauge

	// Package load metrics
	PackagesLoaded   prometheus.Counter
	LoadDuration     prometheus.Histogram
	PackageFrames    prometheus.Histogram
	SequencesSkipped prometheus.Counter

	// Iteration metrics
	BatchesYielded prometheus.Counter
	WindowsYielded prometheus.Counter
	Epochs         prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Catalog metrics
		SequencesDiscovered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loader_sequences_discovered",
			Help: "Number of audio sequences found in the corpus",
		}),
		CatalogCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		}),
		CatalogCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		}),

		// Planning metrics
		ProbeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loader_probe_duration_seconds",
			Help:    "Time spent probing sequence lengths for a plan",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		PackagesPlanned: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loader_packages_planned",
			Help: "Number of packages in the current plan",
		}),
		TotalFrames: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loader_total_frames",
			Help: "Total audio frames covered by the current plan",
		}),

		// Package load metrics
		PackagesLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_packages_loaded_total",
			Help: "Total number of packages decoded into memory",
		}),
		LoadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loader_package_load_duration_seconds",
			Help:    "Time spent decoding and assembling one package",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		PackageFrames: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loader_package_frames",
			Help:    "Frames retained per loaded package",
			Buckets: prometheus.ExponentialBuckets(1e6, 2, 12), // 1M to ~4G frames
		}),
		SequencesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_sequences_skipped_total",
			Help: "Total number of sequences dropped during package assembly",
		}),

		// Iteration metrics
		BatchesYielded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_batches_yielded_total",
			Help: "Total number of batches handed to the consumer",
		}),
		WindowsYielded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_windows_yielded_total",
			Help: "Total number of windows handed to the consumer",
		}),
		Epochs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loader_epochs_total",
			Help: "Total number of completed passes over the corpus",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loader_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordDiscovery records the catalog size and whether the cache served it.
// All recorders tolerate a nil receiver so metrics stay optional.
func (m *Metrics) RecordDiscovery(sequences int, fromCache bool) {
	if m == nil {
		return
	}
	m.SequencesDiscovered.Set(float64(sequences))
	if fromCache {
		m.CatalogCacheHits.Inc()
	} else {
		m.CatalogCacheMisses.Inc()
	}
}

// RecordPlan records the outcome of a planning pass
func (m *Metrics) RecordPlan(packages int, totalFrames int64, probeSeconds float64) {
	if m == nil {
		return
	}
	m.PackagesPlanned.Set(float64(packages))
	m.TotalFrames.Set(float64(totalFrames))
	m.ProbeDuration.Observe(probeSeconds)
}

// RecordPackageLoad records one decoded package
func (m *Metrics) RecordPackageLoad(frames int64, skipped int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PackagesLoaded.Inc()
	m.PackageFrames.Observe(float64(frames))
	m.SequencesSkipped.Add(float64(skipped))
	m.LoadDuration.Observe(durationSeconds)
}

// RecordBatch records one batch handed to the consumer
func (m *Metrics) RecordBatch(windows int) {
	if m == nil {
		return
	}
	m.BatchesYielded.Inc()
	m.WindowsYielded.Add(float64(windows))
}

// RecordEpoch increments the completed epochs counter
func (m *Metrics) RecordEpoch() {
	if m == nil {
		return
	}
	m.Epochs.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
