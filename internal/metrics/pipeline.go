package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "XML files handled, by outcome",
		},
		[]string{"collection", "status"}, // processed / failed / unchanged
	)

	RecordsExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_extracted_total",
			Help:      "Records extracted and embedded from XML",
		},
		[]string{"collection"},
	)

	RecordsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_skipped_total",
			Help:      "Records dropped before insert, by reason",
		},
		[]string{"collection", "reason"},
	)

	RecordsInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_inserted_total",
			Help:      "Records accepted by the vector store",
		},
		[]string{"collection"},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batches_total",
			Help:      "Insert batches submitted, by status",
		},
		[]string{"collection", "status"}, // ok / error
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Insert batch duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"collection"},
	)

	SchemaAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "schema_attempts_total",
			Help:      "Collection creation attempts, by result",
		},
		[]string{"collection", "result"}, // created / rejected / error
	)
)

var pipelineOnce sync.Once

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Safe to call more than once.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(FilesTotal)
		prometheus.MustRegister(RecordsExtractedTotal)
		prometheus.MustRegister(RecordsSkippedTotal)
		prometheus.MustRegister(RecordsInsertedTotal)
		prometheus.MustRegister(BatchesTotal)
		prometheus.MustRegister(BatchDuration)
		prometheus.MustRegister(SchemaAttemptsTotal)
	})
}
