// Ragd is the document ingestion and retrieval daemon.
//
// It fetches documents from S3 or HTTP, extracts and chunks their text,
// embeds the chunks and stores them in a vector index keyed by dataset id.
//
// Configuration is loaded from ~/.config/ragd/config.yaml (or -config) and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	ragd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 QDRANT_HOST=qdrant ragd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/fetch"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/ragd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd [-config path]   Start the ragd daemon\n")
			fmt.Fprintf(os.Stderr, "  ragd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("ragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts ragd and blocks until ctx is cancelled, then shuts down
// gracefully.
//
//  1. Loads configuration
//  2. Initializes telemetry and logger
//  3. Builds the pipeline stages and the index
//  4. Starts the HTTP server
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromLogConfig(cfg.Log)
	if err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := pipeline.New(pipeline.Deps{
		Fetcher:   deps.fetcher,
		Extractor: deps.extractor,
		Chunker:   deps.chunker,
		Embedder:  deps.embedder,
		Index:     deps.index,
		Publisher: deps.publisher,
		Logger:    logger.Named("pipeline"),
		Metrics:   pipeline.NewMetrics(registry),
		Tracer:    tel.Tracer("ragd.pipeline"),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := httpserver.NewServer(svc, logger.Named("http"), &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		BodyLimit: cfg.Server.BodyLimit,
	}, httpserver.WithRegistry(registry))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// dependencies holds the pipeline collaborators and their lifecycles.
type dependencies struct {
	fetcher   *fetch.Fetcher
	extractor *extraction.Extractor
	chunker   *chunker.Chunker
	embedder  embeddings.Provider
	index     vectorstore.Index
	publisher events.Publisher
	logger    *logging.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	ctx := context.Background()
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn(ctx, "failed to close event publisher", zap.Error(err))
		}
	}
	if d.index != nil {
		if err := d.index.Close(); err != nil {
			d.logger.Warn(ctx, "failed to close index", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn(ctx, "failed to close embedder", zap.Error(err))
		}
	}
}

// initDependencies builds every stage. On error anything already opened is
// closed.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *dependencies, err error) {
	d := &dependencies{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	s3Client, err := fetch.NewS3Client(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	d.fetcher, err = fetch.New(fetch.Config{
		TempDir:  cfg.Fetch.TempDir,
		MaxBytes: cfg.Fetch.MaxBytes,
		Timeout:  cfg.Fetch.Timeout.Duration(),
	}, fetch.WithS3(s3Client), fetch.WithLogger(logger.Named("fetch")))
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	var extractOpts []extraction.Option
	if cfg.Tika.URL != "" {
		tika, err := extraction.NewTikaClient(extraction.TikaConfig{
			URL:     cfg.Tika.URL,
			Timeout: cfg.Tika.Timeout.Duration(),
		}, logger.Named("tika"))
		if err != nil {
			return nil, err
		}
		extractOpts = append(extractOpts, extraction.WithContentService(tika))
		logger.Info(ctx, "tika content service enabled", zap.String("url", cfg.Tika.URL))
	}
	d.extractor = extraction.New(extractOpts...)

	seg, err := chunker.NewSegmenter(cfg.Chunking.Segmenter)
	if err != nil {
		return nil, err
	}
	d.chunker, err = chunker.New(seg, cfg.Chunking.MaxSize)
	if err != nil {
		return nil, err
	}

	if cfg.Embedding.Provider == config.EmbeddingFastEmbed {
		lib, err := embeddings.EnsureONNXRuntime(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("onnx runtime: %w", err)
		}
		logger.Info(ctx, "onnx runtime ready", zap.String("path", lib))
	}
	d.embedder, err = embeddings.NewProvider(embeddings.FromConfig(cfg.Embedding, cfg.Qdrant.VectorSize, logger.Named("embeddings")))
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if dim := d.embedder.Dimension(); dim != 0 && uint64(dim) != cfg.Qdrant.VectorSize {
		return nil, fmt.Errorf("model %s produces %d-dim vectors but qdrant.vector_size is %d",
			cfg.Embedding.ModelName, dim, cfg.Qdrant.VectorSize)
	}

	d.index, err = vectorstore.New(ctx, cfg, logger.Named("vectorstore"))
	if err != nil {
		return nil, err
	}
	if err := d.index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info(ctx, "collection verified",
		zap.String("collection", cfg.Qdrant.Collection),
		zap.Uint64("vector_size", cfg.Qdrant.VectorSize))

	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.Named("events"))
		if err != nil {
			return nil, err
		}
		d.publisher = pub
	} else {
		d.publisher = events.Nop{}
	}

	return d, nil
}

