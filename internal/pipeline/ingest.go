package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var errNoChunks = errors.New("no chunks produced")

// Stage names a step of per-file ingestion.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
)

var stageKinds = map[Stage]apperr.Kind{
	StageFetch:   apperr.KindFetch,
	StageExtract: apperr.KindExtraction,
	StageChunk:   apperr.KindExtraction,
	StageEmbed:   apperr.KindEmbedding,
}

// FileOutcome is the result of processing one locator: either staged records
// or the stage that failed and why.
type FileOutcome struct {
	File    string
	Records []vectorstore.Record
	Stage   Stage
	Err     error
}

// OK reports whether the file produced records.
func (o FileOutcome) OK() bool {
	return o.Err == nil
}

func failed(file string, stage Stage, err error) FileOutcome {
	return FileOutcome{File: file, Stage: stage, Err: apperr.New(stageKinds[stage], string(stage), err)}
}

// FileFailure pairs a locator with the reason it was not ingested.
type FileFailure struct {
	File  string `json:"file_url"`
	Error string `json:"error"`
}

// IngestResult summarises an ingestion call.
type IngestResult struct {
	IngestedFiles int
	DatasetID     string
	Chunks        int
	// Failures are in input order.
	Failures []FileFailure
}

// Ingest fetches, extracts, chunks and embeds every file in order, then
// writes all staged records to the index in one batch.
//
// A failing file is recorded in the result and does not stop the batch. The
// call itself fails only on invalid input or when the batch write fails. Once
// validated, the batch runs to completion even if ctx is cancelled.
func (s *Service) Ingest(ctx context.Context, files []string, datasetID string) (result *IngestResult, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("ingest", start, err) }()

	if len(files) == 0 {
		return nil, apperr.Invalid("files list is required")
	}
	if datasetID == "" {
		return nil, apperr.Invalid("datasetId is required")
	}

	ctx = context.WithoutCancel(logging.WithDatasetID(ctx, datasetID))
	ctx, span := s.tracer.Start(ctx, "pipeline.Ingest", trace.WithAttributes(
		attribute.String("dataset.id", datasetID),
		attribute.Int("files.count", len(files)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := s.index.EnsureCollection(ctx); err != nil {
		return nil, apperr.New(apperr.KindIndex, "ensure collection", err)
	}

	result = &IngestResult{DatasetID: datasetID}
	var staged []vectorstore.Record
	for _, file := range files {
		outcome := s.ingestFile(ctx, datasetID, file)
		if !outcome.OK() {
			s.metrics.Files.WithLabelValues("failed", string(outcome.Stage)).Inc()
			s.logger.Warn(ctx, "file ingestion failed",
				logging.Locator("file", file),
				zap.String("stage", string(outcome.Stage)),
				zap.Error(outcome.Err))
			result.Failures = append(result.Failures, FileFailure{File: file, Error: apperr.Message(outcome.Err)})
			continue
		}
		s.metrics.Files.WithLabelValues("ingested", "none").Inc()
		s.logger.Info(ctx, "file processed",
			logging.Locator("file", file),
			zap.Int("chunks", len(outcome.Records)))
		staged = append(staged, outcome.Records...)
	}
	result.IngestedFiles = len(files) - len(result.Failures)

	if len(staged) > 0 {
		if err := s.index.Upsert(ctx, staged); err != nil {
			return nil, apperr.New(apperr.KindIndex, "upsert", err)
		}
		s.metrics.Chunks.Add(float64(len(staged)))
	}
	result.Chunks = len(staged)

	span.SetAttributes(
		attribute.Int("files.ingested", result.IngestedFiles),
		attribute.Int("files.failed", len(result.Failures)),
		attribute.Int("chunks.count", result.Chunks),
	)
	s.logger.Info(ctx, "ingestion complete",
		zap.Int("ingested", result.IngestedFiles),
		zap.Int("failed", len(result.Failures)),
		zap.Int("chunks", result.Chunks))

	s.publish(ctx, events.Event{
		Type:          events.TypeIngested,
		DatasetID:     datasetID,
		IngestedFiles: result.IngestedFiles,
		FailedFiles:   len(result.Failures),
		Chunks:        result.Chunks,
	})
	return result, nil
}

// ingestFile runs one locator through fetch, extract, chunk and embed. The
// downloaded file is removed before returning.
func (s *Service) ingestFile(ctx context.Context, datasetID, file string) FileOutcome {
	dl, err := s.fetcher.Fetch(ctx, file)
	if err != nil {
		return failed(file, StageFetch, err)
	}
	defer func() {
		if err := dl.Remove(); err != nil {
			s.logger.Warn(ctx, "failed to remove temp file", zap.String("path", dl.Path), zap.Error(err))
		}
	}()

	text, err := s.extractor.Extract(ctx, dl.Path)
	if err != nil {
		return failed(file, StageExtract, err)
	}

	var chunks []string
	for c := range s.chunker.Chunks(text) {
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		return failed(file, StageChunk, errNoChunks)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return failed(file, StageEmbed, err)
	}
	if len(vectors) != len(chunks) {
		return failed(file, StageEmbed, errors.New("embedder returned wrong number of vectors"))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:        s.newID(),
			DatasetID: datasetID,
			Chunk:     c,
			Source:    file,
			Position:  i,
			Vector:    vectors[i],
		}
	}
	return FileOutcome{File: file, Records: records}
}

// Delete removes every record of a dataset and waits for the index to apply
// it.
func (s *Service) Delete(ctx context.Context, datasetID string) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("delete", start, err) }()

	if datasetID == "" {
		return apperr.Invalid("datasetId is required")
	}
	ctx = logging.WithDatasetID(ctx, datasetID)
	ctx, span := s.tracer.Start(ctx, "pipeline.Delete", trace.WithAttributes(
		attribute.String("dataset.id", datasetID),
	))
	defer span.End()

	if err := s.index.DeleteDataset(ctx, datasetID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperr.New(apperr.KindIndex, "delete", err)
	}
	s.logger.Info(ctx, "dataset deleted")
	s.publish(ctx, events.Event{Type: events.TypeDeleted, DatasetID: datasetID})
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn(ctx, "failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}
