// Package config provides configuration loading for ragd.
//
// Values come from three layers: compiled defaults, an optional YAML file and
// environment variables. See LoadWithFile for precedence and env mapping.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Vector store providers.
const (
	ProviderQdrant = "qdrant"
	ProviderMemory = "memory"
)

// Embedding providers.
const (
	EmbeddingFastEmbed = "fastembed"
	EmbeddingTEI       = "tei"
)

// Sentence segmenters.
const (
	SegmenterPunkt = "punkt"
	SegmenterRegex = "regex"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Fetch       FetchConfig       `koanf:"fetch"`
	AWS         AWSConfig         `koanf:"aws"`
	Tika        TikaConfig        `koanf:"tika"`
	NATS        NATSConfig        `koanf:"nats"`
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	APIKey     Secret   `koanf:"api_key"`
	UseTLS     bool     `koanf:"use_tls"`
	Collection string   `koanf:"collection"`
	VectorSize uint64   `koanf:"vector_size"`
	Timeout    Duration `koanf:"timeout"`
}

// VectorStoreConfig selects the index backend.
type VectorStoreConfig struct {
	Provider string `koanf:"provider"`
	// Path enables on-disk persistence for the memory provider. Empty keeps
	// everything in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingConfig holds embedding provider settings. A zero Dimension is
// derived from the model name, or taken from qdrant.vector_size for models
// ragd does not know.
type EmbeddingConfig struct {
	Provider  string   `koanf:"provider"`
	ModelName string   `koanf:"model_name"`
	BaseURL   string   `koanf:"base_url"`
	Dimension int      `koanf:"dimension"`
	CacheDir  string   `koanf:"cache_dir"`
	RateLimit float64  `koanf:"rate_limit"`
	Timeout   Duration `koanf:"timeout"`
}

// ChunkingConfig controls text splitting.
type ChunkingConfig struct {
	MaxSize   int    `koanf:"max_size"`
	Segmenter string `koanf:"segmenter"`
}

// FetchConfig controls document download.
type FetchConfig struct {
	TempDir  string   `koanf:"temp_dir"`
	Timeout  Duration `koanf:"timeout"`
	MaxBytes int64    `koanf:"max_bytes"`
}

// AWSConfig holds S3 credentials. Keys map onto the conventional
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables.
type AWSConfig struct {
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey Secret `koanf:"secret_access_key"`
	RegionName      string `koanf:"region_name"`
	Endpoint        string `koanf:"endpoint"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// TikaConfig points at an Apache Tika server used for formats without a
// native extractor. An empty URL disables it.
type TikaConfig struct {
	URL     string   `koanf:"url"`
	Timeout Duration `koanf:"timeout"`
}

// NATSConfig enables dataset lifecycle events. An empty URL disables them.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LogConfig holds the subset of logging settings exposed to operators.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	ServiceName    string   `koanf:"service_name"`
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "2M",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "documents",
			VectorSize: 384,
			Timeout:    Duration(30 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider: ProviderQdrant,
			Compress: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingFastEmbed,
			ModelName: "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:   "http://localhost:8080",
			RateLimit: 20,
			Timeout:   Duration(30 * time.Second),
		},
		Chunking: ChunkingConfig{
			MaxSize:   500,
			Segmenter: SegmenterPunkt,
		},
		Fetch: FetchConfig{
			TempDir:  "/tmp",
			Timeout:  Duration(2 * time.Minute),
			MaxBytes: 100 << 20,
		},
		AWS: AWSConfig{
			RegionName: "us-east-1",
		},
		Tika: TikaConfig{
			Timeout: Duration(60 * time.Second),
		},
		NATS: NATSConfig{
			SubjectPrefix: "ragd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			ServiceName:    "ragd",
			Insecure:       true,
			SampleRate:     1.0,
			MetricInterval: Duration(15 * time.Second),
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	switch c.VectorStore.Provider {
	case ProviderQdrant:
		if c.Qdrant.Host == "" {
			errs = append(errs, errors.New("qdrant host is required"))
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port))
		}
	case ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown vectorstore provider %q (want %s or %s)",
			c.VectorStore.Provider, ProviderQdrant, ProviderMemory))
	}
	if c.Qdrant.Collection == "" {
		errs = append(errs, errors.New("collection name is required"))
	}

	switch c.Embedding.Provider {
	case EmbeddingFastEmbed:
	case EmbeddingTEI:
		if c.Embedding.BaseURL == "" {
			errs = append(errs, errors.New("embedding base_url is required for tei"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must not be negative, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.ModelName == "" {
		errs = append(errs, errors.New("embedding model_name is required"))
	}

	if c.Chunking.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking max_size must be positive, got %d", c.Chunking.MaxSize))
	}
	if s := strings.ToLower(c.Chunking.Segmenter); s != SegmenterPunkt && s != SegmenterRegex {
		errs = append(errs, fmt.Errorf("unknown segmenter %q", c.Chunking.Segmenter))
	}

	if c.Fetch.TempDir == "" {
		errs = append(errs, errors.New("fetch temp_dir is required"))
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}
