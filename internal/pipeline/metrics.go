package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	// Files counts processed files by outcome (ingested, failed) and the
	// stage that failed (none on success).
	Files *prometheus.CounterVec
	// Chunks counts chunks written to the index.
	Chunks prometheus.Counter
	// Duration observes whole operations by name and result.
	Duration *prometheus.HistogramVec
}

// NewMetrics registers collectors on reg. A nil reg creates unregistered
// collectors, which is what tests and embedded uses want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files processed by ingestion, by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		Chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "pipeline",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "pipeline",
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"operation", "result"}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
