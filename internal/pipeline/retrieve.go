package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// ChunkRecord is a stored chunk as returned by ListChunks.
type ChunkRecord struct {
	ID       string `json:"id"`
	Chunk    string `json:"chunk"`
	Source   string `json:"source,omitempty"`
	Position int    `json:"position"`
}

// Retrieve embeds query and returns the texts of the TopK nearest chunks in
// the dataset, best match first.
func (s *Service) Retrieve(ctx context.Context, query, datasetID string) (chunks []string, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("retrieve", start, err) }()

	if query == "" {
		return nil, apperr.Invalid("prompt is required")
	}
	if datasetID == "" {
		return nil, apperr.Invalid("datasetId is required")
	}

	ctx = logging.WithDatasetID(ctx, datasetID)
	ctx, span := s.tracer.Start(ctx, "pipeline.Retrieve", trace.WithAttributes(
		attribute.String("dataset.id", datasetID),
		attribute.Int("k", TopK),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperr.New(apperr.KindEmbedding, "embed query", err)
	}

	hits, err := s.index.Search(ctx, datasetID, vector, TopK)
	if err != nil {
		return nil, apperr.New(apperr.KindIndex, "search", err)
	}

	chunks = make([]string, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, h.Chunk)
	}
	span.SetAttributes(attribute.Int("results.count", len(chunks)))
	s.logger.Debug(ctx, "retrieved chunks", zap.Int("count", len(chunks)))
	return chunks, nil
}

// ListDatasets returns every distinct dataset id in the index, sorted.
func (s *Service) ListDatasets(ctx context.Context) ([]string, error) {
	ids, err := s.index.ListDatasets(ctx)
	if err != nil {
		return nil, apperr.New(apperr.KindIndex, "list datasets", err)
	}
	return ids, nil
}

// ListChunks returns every chunk of one dataset ordered by source and
// position.
func (s *Service) ListChunks(ctx context.Context, datasetID string) ([]ChunkRecord, error) {
	if datasetID == "" {
		return nil, apperr.Invalid("datasetId is required")
	}
	records, err := s.index.ListChunks(logging.WithDatasetID(ctx, datasetID), datasetID)
	if err != nil {
		return nil, apperr.New(apperr.KindIndex, "list chunks", err)
	}
	out := make([]ChunkRecord, len(records))
	for i, r := range records {
		out[i] = ChunkRecord{ID: r.ID, Chunk: r.Chunk, Source: r.Source, Position: r.Position}
	}
	return out, nil
}
