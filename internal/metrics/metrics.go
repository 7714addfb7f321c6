// Package metrics exposes Prometheus instrumentation for the ingestion and
// analysis paths. Served on /metrics by the API router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestedPoints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "via_ingest_points_total",
			Help: "Total number of log records accepted into Tier-1",
		},
	)

	DroppedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "via_ingest_dropped_total",
			Help: "Total number of malformed log records dropped during ingestion",
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "via_anomalies_total",
			Help: "Total number of anomalous fingerprints emitted by the rhythm analyzer",
		},
		[]string{"type"}, // novelty, frequency
	)

	PromotedClusters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "via_promoted_clusters_total",
			Help: "Total number of event clusters promoted into Tier-2",
		},
	)

	FederatedPartitionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "via_federated_partition_errors_total",
			Help: "Total number of per-partition failures swallowed during federated reads",
		},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "via_analysis_duration_seconds",
			Help:    "Duration of rhythm analyzer invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)
