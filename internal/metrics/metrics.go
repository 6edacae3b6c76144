// Package metrics exposes Prometheus instrumentation for the scoring
// pipeline. Metrics register against the default registry and are served on
// /metrics by the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessedTotal counts login events that completed the pipeline,
	// labeled by outcome (ok, failed).
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_events_processed_total",
			Help: "Total number of login events processed by the scoring pipeline",
		},
		[]string{"outcome"},
	)

	// AlertsCreatedTotal counts alerts by risk factor. An alert with multiple
	// factors increments each factor's series.
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_created_total",
			Help: "Total number of security alerts created",
		},
		[]string{"risk_factor"},
	)

	// AnomalyScoreDistribution tracks computed anomaly scores.
	AnomalyScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_score_distribution",
			Help:    "Distribution of computed anomaly scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		},
	)

	// ProcessingDuration tracks pipeline latency per event.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_seconds",
			Help:    "Duration of one pipeline run per event in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// StoreFailuresTotal counts storage-layer failures by backend.
	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_failures_total",
			Help: "Total number of storage backend failures",
		},
		[]string{"backend"},
	)

	// EventsIngestedTotal counts events accepted into the event log, labeled
	// by source (api, generator, seed, stream).
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_events_ingested_total",
			Help: "Total number of login events appended to the event log",
		},
		[]string{"source"},
	)

	// StreamingActive reports whether a background streaming task is running.
	StreamingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streaming_task_active",
			Help: "Whether a background event streaming task is currently running",
		},
	)
)
