package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// New creates the Index selected by cfg.VectorStore.Provider:
//   - "qdrant" (default): QdrantIndex, requires a running Qdrant server
//   - "memory": MemoryIndex, embedded chromem-go
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Index, error) {
	switch cfg.VectorStore.Provider {
	case config.ProviderQdrant, "":
		idx, err := NewQdrantIndex(ctx, QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			Collection:     cfg.Qdrant.Collection,
			VectorSize:     cfg.Qdrant.VectorSize,
			RequestTimeout: cfg.Qdrant.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.ProviderMemory:
		idx, err := NewMemoryIndex(MemoryConfig{
			Path:       cfg.VectorStore.Path,
			Compress:   cfg.VectorStore.Compress,
			Collection: cfg.Qdrant.Collection,
			VectorSize: int(cfg.Qdrant.VectorSize),
		}, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: %s, %s)",
			ErrInvalidConfig, cfg.VectorStore.Provider, config.ProviderQdrant, config.ProviderMemory)
	}
}
