package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/embeddings"

const (
	opEmbedDocuments = "embed_documents"
	opEmbedQuery     = "embed_query"
)

var (
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	batchBuckets    = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Metrics records embedding latency, batch sizes and failures per model and
// operation. A nil instrument is skipped.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider. Instrument
// errors are logged and leave that instrument unset.
func NewMetrics(logger *zap.Logger) *Metrics {
	m, err := newMetrics(otel.Meter(instrumentationName))
	if err != nil && logger != nil {
		logger.Warn("embedding metrics partially unavailable", zap.Error(err))
	}
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var errs [3]error
	m.duration, errs[0] = meter.Float64Histogram("ragd.embedding.generation_duration_seconds",
		metric.WithDescription("Time spent producing embeddings"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	m.batchSize, errs[1] = meter.Int64Histogram("ragd.embedding.batch_size",
		metric.WithDescription("Texts per embedding call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(batchBuckets...))
	m.errors, errs[2] = meter.Int64Counter("ragd.embedding.errors_total",
		metric.WithDescription("Failed embedding calls"),
		metric.WithUnit("{error}"))
	return m, errors.Join(errs[:]...)
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, d time.Duration, batchSize int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.batchSize != nil && batchSize > 0 {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if m.errors != nil && err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// Track times a call and is deferred with a pointer to the named error
// result:
//
//	defer m.Track(ctx, model, opEmbedQuery, 1, &err)()
func (m *Metrics) Track(ctx context.Context, model, operation string, batchSize int, errp *error) func() {
	start := time.Now()
	return func() {
		var err error
		if errp != nil {
			err = *errp
		}
		m.RecordGeneration(ctx, model, operation, time.Since(start), batchSize, err)
	}
}
