// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusFiltered = "filtered"
	StatusInvalid  = "invalid"
)

var (
	// SyncOperationsTotal tracks graph sync operations by kind and outcome
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Total number of graph sync operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// SyncOperationDuration tracks graph sync duration in seconds
	SyncOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "operation_duration_seconds",
			Help:      "Duration of graph sync operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// SyncNodesWritten tracks nodes upserted per document sync
	SyncNodesWritten = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "nodes_per_document",
			Help:      "Number of nodes written per document sync",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"operation"},
	)

	// ReindexDocumentsTotal tracks documents synchronized by bulk reindex
	ReindexDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reindex",
			Name:      "documents_total",
			Help:      "Total number of documents synchronized by reindex passes",
		},
		[]string{"pass"},
	)

	// HookFailuresTotal tracks lifecycle sync failures that were swallowed
	HookFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "hooks",
			Name:      "failures_total",
			Help:      "Total number of lifecycle hook sync failures",
		},
		[]string{"hook"},
	)

	// LifecycleMessagesTotal tracks consumed lifecycle messages
	LifecycleMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "lifecycle_messages_total",
			Help:      "Total number of lifecycle messages consumed by status",
		},
		[]string{"status"},
	)
)

// ObserveSync records one sync operation
func ObserveSync(operation, status string, started time.Time) {
	SyncOperationsTotal.WithLabelValues(operation, status).Inc()
	SyncOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
