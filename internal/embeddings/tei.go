package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 4 << 10

// TEIConfig configures a Text Embeddings Inference client.
type TEIConfig struct {
	BaseURL string
	Model   string
	// Dimension overrides the size derived from Model.
	Dimension int
	// RateLimit caps requests per second. Zero disables the limit.
	RateLimit float64
	Timeout   time.Duration
	// BatchSize splits large inputs across requests. Defaults to 32.
	BatchSize  int
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TEIClient calls POST /embed on a TEI server.
type TEIClient struct {
	baseURL   string
	model     string
	dimension int
	batchSize int
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *logging.Logger
}

// NewTEIClient creates a client. No request is made until the first embed.
func NewTEIClient(cfg TEIConfig) (*TEIClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DimensionForModel(cfg.Model)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	c := &TEIClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: dim,
		batchSize: batch,
		client:    client,
		metrics:   NewMetrics(logger.Underlying()),
		logger:    logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedDocuments embeds texts in batches and returns vectors in input order.
func (c *TEIClient) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	defer c.metrics.Track(ctx, c.model, opEmbedDocuments, len(texts), &err)()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors = make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single prompt.
func (c *TEIClient) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	defer c.metrics.Track(ctx, c.model, opEmbedQuery, 1, &err)()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *TEIClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn(ctx, "tei request failed",
			zap.Int("status", resp.StatusCode),
			zap.Int("batch_size", len(texts)))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	if err := checkDimensions(vectors, c.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimension returns the configured vector size.
func (c *TEIClient) Dimension() int {
	return c.dimension
}

// Close is a no-op; the client holds no connections of its own.
func (c *TEIClient) Close() error {
	return nil
}
