package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch means the model returned vectors of an
	// unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Provider generates embeddings.
type Provider interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single prompt.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector size of the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed" or "tei".
	Provider string
	Model    string
	// BaseURL is the TEI server URL.
	BaseURL string
	// Dimension is the expected vector size. Zero derives it from Model.
	Dimension int
	// CacheDir is the FastEmbed model cache directory.
	CacheDir string
	// RateLimit caps TEI requests per second. Zero disables the limit.
	RateLimit float64
	Timeout   time.Duration
	Logger    *logging.Logger
}

// FromConfig converts the service configuration. When no dimension is set
// and the model is not one ragd knows, vectorSize (the collection's vector
// size) is used instead of a guess from the name.
func FromConfig(cfg config.EmbeddingConfig, vectorSize uint64, logger *logging.Logger) ProviderConfig {
	dim := cfg.Dimension
	if dim == 0 && cfg.ModelName != "" && !KnownModel(cfg.ModelName) {
		dim = int(vectorSize)
	}
	return ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.ModelName,
		BaseURL:   cfg.BaseURL,
		Dimension: dim,
		CacheDir:  cfg.CacheDir,
		RateLimit: cfg.RateLimit,
		Timeout:   cfg.Timeout.Duration(),
		Logger:    logger,
	}
}

// knownDimensions maps accepted model names to their vector size.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-all-MiniLM-L6-v2":                  384,
	"BAAI/bge-small-en-v1.5":                 384,
	"fast-bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"fast-bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"fast-bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"fast-bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"fast-bge-small-zh-v1.5":                 512,
}

// KnownModel reports whether model has a fixed, known vector size.
func KnownModel(model string) bool {
	_, ok := knownDimensions[model]
	return ok
}

// DimensionForModel returns the vector size for a model name. Unknown
// models are guessed from their name and fall back to 384.
func DimensionForModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	switch cfg.Provider {
	case config.EmbeddingFastEmbed, "":
		if want, ok := knownDimensions[cfg.Model]; ok && cfg.Dimension != 0 && cfg.Dimension != want {
			return nil, fmt.Errorf("%w: fastembed model %s has %d dimensions, not %d",
				ErrInvalidConfig, cfg.Model, want, cfg.Dimension)
		}
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EmbeddingTEI:
		c, err := NewTEIClient(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			Logger:    cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// checkDimensions verifies every vector has size dim.
func checkDimensions(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
