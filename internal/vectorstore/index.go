package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrMissingDataset is returned for records or queries without a dataset id.
	ErrMissingDataset = errors.New("dataset id is required")

	// ErrDimensionMismatch is returned for vectors of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Payload keys stored with every point.
const (
	KeyChunk     = "chunk"
	KeyDatasetID = "datasetId"
	KeySource    = "source"
	KeyPosition  = "position"
)

// Record is one chunk and its vector.
type Record struct {
	ID        string
	DatasetID string
	Chunk     string
	Source    string
	Position  int
	Vector    []float32
}

// Hit is a search result. Vector is not populated.
type Hit struct {
	Record
	Score float32
}

// Index is the vector index used by the pipelines.
type Index interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error
	// Upsert writes records and waits until they are searchable.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to k records of datasetID ordered by cosine
	// similarity to vector, best first.
	Search(ctx context.Context, datasetID string, vector []float32, k int) ([]Hit, error)
	// DeleteDataset removes every record of datasetID and waits for it.
	DeleteDataset(ctx context.Context, datasetID string) error
	// ListDatasets returns the distinct dataset ids, sorted.
	ListDatasets(ctx context.Context) ([]string, error)
	// ListChunks returns all records of datasetID ordered by source and
	// position. Vectors are not populated.
	ListChunks(ctx context.Context, datasetID string) ([]Record, error)
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
	Close() error
}

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,255}$`)

// ValidateCollectionName rejects names that are empty or could escape a
// storage path.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

// validateRecords checks the invariants shared by every backend.
func validateRecords(records []Record, dim int) error {
	for i, r := range records {
		if strings.TrimSpace(r.DatasetID) == "" {
			return fmt.Errorf("record %d: %w", i, ErrMissingDataset)
		}
		if r.ID == "" {
			return fmt.Errorf("record %d: id is required", i)
		}
		if dim > 0 && len(r.Vector) != dim {
			return fmt.Errorf("record %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(r.Vector), dim)
		}
	}
	return nil
}

// sortRecords orders records by source then position.
func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Position, b.Position),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
