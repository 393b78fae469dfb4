package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	region  string
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}
	f.region = o.Region
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func newFetcher(t *testing.T, opts ...Option) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	f, err := New(Config{TempDir: dir, MaxBytes: 1024}, opts...)
	require.NoError(t, err)
	return f, dir
}

func TestFetch_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"docs/reports/q1.txt": "quarterly numbers"}}
	f, dir := newFetcher(t, WithS3(fake))

	dl, err := f.Fetch(context.Background(), "https://docs.s3.eu-west-1.amazonaws.com/reports/q1.txt")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(dl.Path))
	assert.True(t, strings.HasSuffix(dl.Path, "-q1.txt"), dl.Path)
	assert.Equal(t, int64(17), dl.Size)
	assert.Equal(t, "eu-west-1", fake.region)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	require.NoError(t, dl.Remove())
	_, err = os.Stat(dl.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoError(t, dl.Remove())
}

func TestFetch_UniqueNamesForSameKey(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"a/x.txt": "one", "b/x.txt": "two"}}
	f, _ := newFetcher(t, WithS3(fake))

	d1, err := f.Fetch(context.Background(), "s3://a/x.txt")
	require.NoError(t, err)
	d2, err := f.Fetch(context.Background(), "s3://b/x.txt")
	require.NoError(t, err)
	assert.NotEqual(t, d1.Path, d2.Path)
}

func TestFetch_S3Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		f, dir := newFetcher(t, WithS3(&fakeS3{}))
		_, err := f.Fetch(context.Background(), "s3://docs/missing.pdf")
		assert.ErrorIs(t, err, ErrNotFound)
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("no client", func(t *testing.T) {
		f, _ := newFetcher(t)
		_, err := f.Fetch(context.Background(), "s3://docs/a.pdf")
		assert.ErrorIs(t, err, ErrNoS3Client)
	})

	t.Run("credentials failure", func(t *testing.T) {
		f, _ := newFetcher(t, WithS3(&fakeS3{err: errors.New("no valid providers in chain")}))
		_, err := f.Fetch(context.Background(), "s3://docs/a.pdf")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid providers")
	})

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat("x", 2048)
		f, _ := newFetcher(t, WithS3(&fakeS3{objects: map[string]string{"docs/big.txt": big}}))
		_, err := f.Fetch(context.Background(), "s3://docs/big.txt")
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manual.html":
			_, _ = io.WriteString(w, "<p>hi</p>")
		case "/stream.txt":
			// Flushing forces a chunked response without Content-Length.
			for i := 0; i < 3; i++ {
				_, _ = io.WriteString(w, strings.Repeat("y", 500))
				w.(http.Flusher).Flush()
			}
		case "/broken.txt":
			http.Error(w, "nope", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, dir := newFetcher(t, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	dl, err := f.Fetch(ctx, srv.URL+"/manual.html?token=abc")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dl.Path, "-manual.html"))
	require.NoError(t, dl.Remove())

	_, err = f.Fetch(ctx, srv.URL+"/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, srv.URL+"/broken.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	_, err = f.Fetch(ctx, srv.URL+"/stream.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed downloads must not leave files behind")
}

func TestNew_TempDirValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{TempDir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	_, err = New(Config{TempDir: file})
	assert.Error(t, err)
}
