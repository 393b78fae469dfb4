// Package pipeline implements ingestion and retrieval over the fetch,
// extraction, chunking, embedding and index stages.
//
// Every collaborator is injected through Deps so tests can swap any stage for
// a fake. Errors leaving this package are classified with apperr kinds.
package pipeline

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/fetch"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// TopK is the number of chunks Retrieve returns.
const TopK = 3

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/pipeline"

// Fetcher downloads a locator to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*fetch.Download, error)
}

// Extractor turns a local file into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits text into bounded chunks.
type Chunker interface {
	Chunks(text string) iter.Seq[string]
}

// Embedder embeds chunks and prompts with the same model.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Deps are the collaborators of a Service. Publisher, Logger, Metrics and
// Tracer are optional.
type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Chunker   Chunker
	Embedder  Embedder
	Index     vectorstore.Index
	Publisher events.Publisher
	Logger    *logging.Logger
	Metrics   *Metrics
	Tracer    trace.Tracer
	// NewID generates record ids. Defaults to random UUIDs.
	NewID func() string
}

// Service runs the pipelines.
type Service struct {
	fetcher   Fetcher
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	index     vectorstore.Index
	publisher events.Publisher
	logger    *logging.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	newID     func() string
}

// New validates deps and fills in defaults.
func New(d Deps) (*Service, error) {
	var errs []error
	if d.Fetcher == nil {
		errs = append(errs, errors.New("fetcher is required"))
	}
	if d.Extractor == nil {
		errs = append(errs, errors.New("extractor is required"))
	}
	if d.Chunker == nil {
		errs = append(errs, errors.New("chunker is required"))
	}
	if d.Embedder == nil {
		errs = append(errs, errors.New("embedder is required"))
	}
	if d.Index == nil {
		errs = append(errs, errors.New("index is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Service{
		fetcher:   d.Fetcher,
		extractor: d.Extractor,
		chunker:   d.Chunker,
		embedder:  d.Embedder,
		index:     d.Index,
		publisher: d.Publisher,
		logger:    d.Logger,
		metrics:   d.Metrics,
		tracer:    d.Tracer,
		newID:     d.NewID,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Health checks the index backend.
func (s *Service) Health(ctx context.Context) error {
	return s.index.Health(ctx)
}
