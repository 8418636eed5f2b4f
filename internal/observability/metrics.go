package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "incident_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a pipeline run.
type Metrics struct {
	RecordsLoaded     prometheus.Counter
	TimestampFailures prometheus.Counter
	RecordsEnriched   prometheus.Counter
	RecordsPublished  prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Stage and model metrics.
	StageDuration *prometheus.HistogramVec // labels: stage={load,derive,enrich,bin,fit,sink}
	FitsCompleted *prometheus.CounterVec   // labels: model, outcome={success,error}

	// Elevation lookup metrics.
	ElevationRequests    *prometheus.CounterVec // labels: outcome={success,error,retry}
	ElevationCache       *prometheus.CounterVec // labels: layer={memory,sqlite}, result={hit,miss}
	ElevationAPIDuration prometheus.Histogram
}
	RecordsPublished   prometheus.Counter
	FitsCompleted      *prometheus.CounterVec // labels: model, outcome={success,error}

	// Elevation lookup metrics.
	ElevationRequests    *prometheus.CounterVec // labels: outcome={success,error,retry}
	ElevationCache       *prometheus.CounterVec // labels: layer={memory,sqlite}, result={hit,miss}
	ElevationAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsLoaded,
		m.TimestampFailures,
		m.RecordsEnriched,
		m.PipelineRunning,
		m.StageDuration,
		m.RecordsPublished,
		m.FitsCompleted,
		m.ElevationRequests,
		m.ElevationCache,
		m.ElevationAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Total incident rows read from the input file.",
		}),
		TimestampFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamp_failures_total",
			Help:      "Records whose datetime or time field could not be parsed.",
		}),
		RecordsEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enriched_total",
			Help:      "Records with a resolved elevation.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600},
		}, []string{"stage"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Enriched records written to the Kafka sink.",
		}),
		FitsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Regression fits by model and outcome.",
		}, []string{"model", "outcome"}),
		ElevationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elevation_requests_total",
			Help:      "Elevation API requests by outcome.",
		}, []string{"outcome"}),
		ElevationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elevation_cache_total",
			Help:      "Elevation cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		ElevationAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "elevation_api_duration_seconds",
			Help:      "Elevation API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
