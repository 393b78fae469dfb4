package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const (
	defaultTikaTimeout = 60 * time.Second
	maxTikaResponse    = 64 << 20
)

// ErrContentServiceUnavailable is returned while the circuit breaker is open.
var ErrContentServiceUnavailable = errors.New("content extraction service unavailable")

// TikaConfig configures a TikaClient.
type TikaConfig struct {
	URL     string
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// TikaClient extracts text through the Apache Tika server REST API
// (PUT /tika). Calls run behind a circuit breaker so an unreachable server
// fails files immediately instead of waiting out the timeout each time.
// There is no retry.
type TikaClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.Logger
}

// NewTikaClient creates a client for the Tika server at cfg.URL.
func NewTikaClient(cfg TikaConfig, logger *logging.Logger) (*TikaClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("tika url is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTikaTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &TikaClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("tika"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tika",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Rejected documents say nothing about server health.
			var se *tikaStatusError
			return err == nil || (errors.As(err, &se) && se.code < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c, nil
}

// ExtractText implements ContentService.
func (c *TikaClient) ExtractText(ctx context.Context, path string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.put(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrContentServiceUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type tikaStatusError struct {
	code int
	body string
}

func (e *tikaStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("tika returned status %d", e.code)
	}
	return fmt.Sprintf("tika returned status %d: %s", e.code, e.body)
}

func (c *TikaClient) put(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", f)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/plain; charset=UTF-8")
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTikaResponse))
	if err != nil {
		return "", fmt.Errorf("reading tika response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", &tikaStatusError{code: resp.StatusCode, body: msg}
	}
	return string(body), nil
}
