package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// errNoEmbedder is returned if chromem ever tries to embed text itself;
// every vector is computed before it reaches the index.
var errNoEmbedder = errors.New("vectors must be supplied by the caller")

// MemoryConfig configures the embedded chromem-go backend.
type MemoryConfig struct {
	// Path enables persistence under this directory. Empty keeps
	// everything in memory.
	Path string
	// Compress gzips persisted documents.
	Compress   bool
	Collection string
	VectorSize int
}

// MemoryIndex implements Index on an embedded chromem-go database.
type MemoryIndex struct {
	db     *chromem.DB
	config MemoryConfig
	logger *logging.Logger

	mu         sync.Mutex
	collection *chromem.Collection
}

// NewMemoryIndex opens the database.
func NewMemoryIndex(cfg MemoryConfig, logger *logging.Logger) (*MemoryIndex, error) {
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 384
	}
	if cfg.VectorSize < 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	db := chromem.NewDB()
	if cfg.Path != "" {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
		cfg.Path = path
	}

	logger.Info(context.Background(), "memory index initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("vector_size", cfg.VectorSize),
		zap.String("collection", cfg.Collection),
	)
	return &MemoryIndex{db: db, config: cfg, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, rest), nil
	}
	return path, nil
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// EnsureCollection creates the collection if it does not exist.
func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	_, err := m.getCollection(true)
	return err
}

// getCollection returns the collection, creating it when create is set.
// It returns nil without error when the collection does not exist yet.
func (m *MemoryIndex) getCollection(create bool) (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collection != nil {
		return m.collection, nil
	}
	if c := m.db.GetCollection(m.config.Collection, noEmbed); c != nil {
		m.collection = c
		return c, nil
	}
	if !create {
		return nil, nil
	}
	c, err := m.db.GetOrCreateCollection(m.config.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", m.config.Collection, err)
	}
	m.collection = c
	return c, nil
}

// Upsert adds or replaces records. chromem applies writes synchronously.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "MemoryIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("points", len(records)))

	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, m.config.VectorSize); err != nil {
		return err
	}

	c, err := m.getCollection(true)
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Chunk,
			Embedding: slices.Clone(r.Vector),
			Metadata: map[string]string{
				KeyDatasetID: r.DatasetID,
				KeySource:    r.Source,
				KeyPosition:  strconv.Itoa(r.Position),
			},
		}
	}
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Search runs a filtered cosine similarity query.
func (m *MemoryIndex) Search(ctx context.Context, datasetID string, vector []float32, k int) ([]Hit, error) {
	ctx, span := chromemTracer.Start(ctx, "MemoryIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if datasetID == "" {
		return nil, ErrMissingDataset
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != m.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), m.config.VectorSize)
	}

	results, err := m.query(ctx, vector, k, datasetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Record: fromResult(r), Score: r.Similarity}
	}
	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}

// query caps k at the collection size, which chromem requires.
func (m *MemoryIndex) query(ctx context.Context, vector []float32, k int, datasetID string) ([]chromem.Result, error) {
	c, err := m.getCollection(false)
	if err != nil || c == nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 {
		return nil, nil
	}
	var where map[string]string
	if datasetID != "" {
		where = map[string]string{KeyDatasetID: datasetID}
	}
	results, err := c.QueryEmbedding(ctx, slices.Clone(vector), min(k, n), where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", m.config.Collection, err)
	}
	return results, nil
}

// DeleteDataset removes every document whose dataset matches.
func (m *MemoryIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	ctx, span := chromemTracer.Start(ctx, "MemoryIndex.DeleteDataset")
	defer span.End()

	if datasetID == "" {
		return ErrMissingDataset
	}
	c, err := m.getCollection(false)
	if err != nil || c == nil {
		return err
	}
	if err := c.Delete(ctx, map[string]string{KeyDatasetID: datasetID}, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting dataset: %w", err)
	}
	return nil
}

// scan returns every document, optionally restricted to one dataset.
// chromem has no scan API; a query whose result count equals the collection
// size returns every matching document.
func (m *MemoryIndex) scan(ctx context.Context, datasetID string) ([]chromem.Result, error) {
	probe := make([]float32, m.config.VectorSize)
	probe[0] = 1
	c, err := m.getCollection(false)
	if err != nil || c == nil {
		return nil, err
	}
	return m.query(ctx, probe, c.Count(), datasetID)
}

// ListDatasets returns the sorted distinct dataset ids.
func (m *MemoryIndex) ListDatasets(ctx context.Context) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "MemoryIndex.ListDatasets")
	defer span.End()

	results, err := m.scan(ctx, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ids := make([]string, 0)
	for _, r := range results {
		if id := r.Metadata[KeyDatasetID]; id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ListChunks returns all records of one dataset.
func (m *MemoryIndex) ListChunks(ctx context.Context, datasetID string) ([]Record, error) {
	ctx, span := chromemTracer.Start(ctx, "MemoryIndex.ListChunks")
	defer span.End()

	if datasetID == "" {
		return nil, ErrMissingDataset
	}
	results, err := m.scan(ctx, datasetID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	records := make([]Record, len(results))
	for i, r := range results {
		records[i] = fromResult(r)
	}
	sortRecords(records)
	return records, nil
}

// Health always succeeds; the database is in-process.
func (m *MemoryIndex) Health(context.Context) error {
	return nil
}

// Close is a no-op. Persistent databases write through on every change.
func (m *MemoryIndex) Close() error {
	return nil
}

func fromResult(r chromem.Result) Record {
	pos, _ := strconv.Atoi(r.Metadata[KeyPosition])
	return Record{
		ID:        r.ID,
		Chunk:     r.Content,
		DatasetID: r.Metadata[KeyDatasetID],
		Source:    r.Metadata[KeySource],
		Position:  pos,
	}
}

var _ Index = (*MemoryIndex)(nil)
