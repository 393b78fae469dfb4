// Package fetch downloads documents from S3 or HTTP(S) into a local
// workspace directory.
//
// Each download gets a unique file name that keeps the source's base name
// and extension, so concurrent requests never share a path and extraction
// can still dispatch on the extension.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var (
	// ErrNotFound means the object or URL does not exist.
	ErrNotFound = errors.New("source not found")
	// ErrTooLarge means the source exceeds the configured size limit.
	ErrTooLarge = errors.New("source exceeds size limit")
	// ErrNoS3Client means an S3 locator arrived but S3 is not configured.
	ErrNoS3Client = errors.New("s3 is not configured")
)

// S3API is the subset of the S3 client used for downloads.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config configures a Fetcher.
type Config struct {
	TempDir  string
	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher downloads documents into TempDir.
type Fetcher struct {
	s3       S3API
	http     *http.Client
	tempDir  string
	maxBytes int64
	logger   *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithS3 sets the S3 client used for s3 locators.
func WithS3(client S3API) Option {
	return func(f *Fetcher) {
		f.s3 = client
	}
}

// WithHTTPClient overrides the HTTP client used for plain URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.http = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher. The temp directory must exist.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.TempDir == "" {
		return nil, errors.New("temp dir is required")
	}
	info, err := os.Stat(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("temp dir %s is not a directory", cfg.TempDir)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	f := &Fetcher{
		http:     &http.Client{Timeout: timeout},
		tempDir:  cfg.TempDir,
		maxBytes: cfg.MaxBytes,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Download is a fetched document on local disk.
type Download struct {
	Locator Locator
	Path    string
	Size    int64
}

// Remove deletes the local copy. Removing twice is not an error.
func (d *Download) Remove() error {
	if d == nil || d.Path == "" {
		return nil
	}
	if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Fetch downloads the document at raw. On error nothing is left on disk.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Download, error) {
	loc, err := ParseLocator(raw)
	if err != nil {
		return nil, err
	}

	body, err := f.open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	out, err := os.CreateTemp(f.tempDir, "ragd-*-"+safeName(loc.Name()))
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	dl := &Download{Locator: loc, Path: out.Name()}

	n, err := f.copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = dl.Remove()
		return nil, err
	}
	dl.Size = n

	f.logger.Debug(ctx, "document downloaded",
		logging.Locator("file", loc.Raw),
		zap.String("kind", string(loc.Kind)),
		zap.Int64("bytes", n))
	return dl, nil
}

func (f *Fetcher) copy(dst io.Writer, src io.Reader) (int64, error) {
	if f.maxBytes <= 0 {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, fmt.Errorf("downloading: %w", err)
		}
		return n, nil
	}
	n, err := io.Copy(dst, io.LimitReader(src, f.maxBytes+1))
	if err != nil {
		return n, fmt.Errorf("downloading: %w", err)
	}
	if n > f.maxBytes {
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return n, nil
}

func (f *Fetcher) open(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	switch loc.Kind {
	case KindS3:
		return f.openS3(ctx, loc)
	default:
		return f.openHTTP(ctx, loc)
	}
}

func (f *Fetcher) openS3(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	if f.s3 == nil {
		return nil, ErrNoS3Client
	}

	var optFns []func(*s3.Options)
	if loc.Region != "" {
		optFns = append(optFns, func(o *s3.Options) {
			o.Region = loc.Region
		})
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, optFns...)
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, loc.Bucket, loc.Key)
		}
		return nil, fmt.Errorf("s3 get object s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	if f.maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > f.maxBytes {
		out.Body.Close()
		return nil, fmt.Errorf("%w: object is %d bytes", ErrTooLarge, *out.ContentLength)
	}
	return out.Body, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc.URL.Redacted())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("http get: unexpected status %s", resp.Status)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}
	return resp.Body, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName keeps the base name usable as a file name suffix.
func safeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" || name == "." || name == ".." {
		return "download"
	}
	return name
}
