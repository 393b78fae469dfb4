package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/fetch"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// fakeFetcher writes the configured body for each locator to a temp file.
// Locators without a body fail.
type fakeFetcher struct {
	dir    string
	bodies map[string]string
	paths  []string
	ctxErr []error
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator string) (*fetch.Download, error) {
	f.ctxErr = append(f.ctxErr, ctx.Err())
	body, ok := f.bodies[locator]
	if !ok {
		return nil, fetch.ErrNotFound
	}
	path := filepath.Join(f.dir, filepath.Base(locator))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return nil, err
	}
	f.paths = append(f.paths, path)
	return &fetch.Download{Path: path, Size: int64(len(body))}, nil
}

// fileExtractor returns the file contents; bodies starting with "!corrupt"
// fail extraction.
type fileExtractor struct{}

func (fileExtractor) Extract(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(string(b), "!corrupt") {
		return "", errors.New("unsupported or corrupt file")
	}
	return string(b), nil
}

// keywordEmbedder maps text onto counts of three keywords. Text containing
// "EMBEDFAIL" fails.
type keywordEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	queries []string
}

func keywordVector(text string) []float32 {
	t := strings.ToLower(text)
	return []float32{
		0.01 + float32(strings.Count(t, "alpha")),
		0.01 + float32(strings.Count(t, "beta")),
		0.01 + float32(strings.Count(t, "gamma")),
	}
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "EMBEDFAIL") {
			return nil, errors.New("model unavailable")
		}
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if strings.Contains(text, "EMBEDFAIL") {
		return nil, errors.New("model unavailable")
	}
	return keywordVector(text), nil
}

// countingIndex wraps a real index and counts writes. A non-nil upsertErr
// fails every Upsert.
type countingIndex struct {
	vectorstore.Index
	upserts   int
	upserted  []vectorstore.Record
	upsertErr error
	deleteErr error
	searchErr error
}

func (c *countingIndex) Upsert(ctx context.Context, records []vectorstore.Record) error {
	c.upserts++
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.upserted = append(c.upserted, records...)
	return c.Index.Upsert(ctx, records)
}

func (c *countingIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.Index.DeleteDataset(ctx, datasetID)
}

func (c *countingIndex) Search(ctx context.Context, datasetID string, vector []float32, k int) ([]vectorstore.Hit, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.Index.Search(ctx, datasetID, vector, k)
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// withMaxSize swaps in a regex chunker with a different size limit.
func withMaxSize(t *testing.T, n int) func(*Deps) {
	t.Helper()
	ch, err := chunker.New(chunker.NewRegexSegmenter(), n)
	require.NoError(t, err)
	return func(d *Deps) { d.Chunker = ch }
}

type harness struct {
	svc       *Service
	fetcher   *fakeFetcher
	embedder  *keywordEmbedder
	index     *countingIndex
	publisher *recordingPublisher
}

func newHarness(t *testing.T, bodies map[string]string, opts ...func(*Deps)) *harness {
	t.Helper()

	mem, err := vectorstore.NewMemoryIndex(vectorstore.MemoryConfig{Collection: "documents", VectorSize: 3}, nil)
	require.NoError(t, err)
	ch, err := chunker.New(chunker.NewRegexSegmenter(), 60)
	require.NoError(t, err)

	h := &harness{
		fetcher:   &fakeFetcher{dir: t.TempDir(), bodies: bodies},
		embedder:  &keywordEmbedder{},
		index:     &countingIndex{Index: mem},
		publisher: &recordingPublisher{},
	}
	deps := Deps{
		Fetcher:   h.fetcher,
		Extractor: fileExtractor{},
		Chunker:   ch,
		Embedder:  h.embedder,
		Index:     h.index,
		Publisher: h.publisher,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc, err = New(deps)
	require.NoError(t, err)
	return h
}
