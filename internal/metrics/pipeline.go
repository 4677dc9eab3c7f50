package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages.
const (
	StageVectorize = "vectorize"
	StageLoad      = "load"
)

// Item outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Pipeline Prometheus metrics.
var (
	PipelineItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items processed by pipeline stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	PipelineBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches completed by pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch processing duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

// ObserveBatch records one completed batch of a stage.
func ObserveBatch(stage string, succeeded, failed int, d time.Duration) {
	PipelineBatchesTotal.WithLabelValues(stage).Inc()
	PipelineBatchDuration.WithLabelValues(stage).Observe(d.Seconds())
	if succeeded > 0 {
		PipelineItemsTotal.WithLabelValues(stage, OutcomeSucceeded).Add(float64(succeeded))
	}
	if failed > 0 {
		PipelineItemsTotal.WithLabelValues(stage, OutcomeFailed).Add(float64(failed))
	}
}

// ObserveSkipped records items a stage skipped without processing.
func ObserveSkipped(stage string, n int) {
	if n > 0 {
		PipelineItemsTotal.WithLabelValues(stage, OutcomeSkipped).Add(float64(n))
	}
}

// Register registers every vecingest collector on reg.
// Collectors already registered on reg are left as they are.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
		PipelineItemsTotal,
		PipelineBatchesTotal,
		PipelineBatchDuration,
		httpRequestDuration,
		httpRequestsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err //nolint:wrapcheck // registry errors are self-describing
		}
	}
	return nil
}
