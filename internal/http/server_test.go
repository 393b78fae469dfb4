package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
)

type fakeService struct {
	ingestFiles   []string
	ingestDataset string
	ingestResult  *pipeline.IngestResult
	retrieved     []string
	deleted       string
	datasets      []string
	chunks        []pipeline.ChunkRecord
	requestID     string
	err           error
	healthErr     error
}

func (f *fakeService) Ingest(ctx context.Context, files []string, datasetID string) (*pipeline.IngestResult, error) {
	f.ingestFiles, f.ingestDataset = files, datasetID
	f.requestID = logging.RequestIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.ingestResult, nil
}

func (f *fakeService) Retrieve(_ context.Context, query, datasetID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.retrieved, nil
}

func (f *fakeService) Delete(_ context.Context, datasetID string) error {
	f.deleted = datasetID
	return f.err
}

func (f *fakeService) ListDatasets(context.Context) ([]string, error) {
	return f.datasets, f.err
}

func (f *fakeService) ListChunks(_ context.Context, datasetID string) ([]pipeline.ChunkRecord, error) {
	return f.chunks, f.err
}

func (f *fakeService) Health(context.Context) error {
	return f.healthErr
}

func setupTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	server, err := NewServer(svc, logging.Nop(), &Config{Host: "localhost", Port: 8000, BodyLimit: "1K"})
	require.NoError(t, err)
	return server
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, r)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakeService{}, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", server.config.Host)
		assert.Equal(t, 8000, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeService{}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.Nop(), nil)
		assert.ErrorContains(t, err, "service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	svc := &fakeService{}
	server := setupTestServer(t, svc)

	rec := do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	svc.healthErr = errors.New("qdrant down")
	rec = do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "qdrant down")
}

func TestHandleIngest(t *testing.T) {
	t.Run("returns counts and failures", func(t *testing.T) {
		svc := &fakeService{ingestResult: &pipeline.IngestResult{
			IngestedFiles: 1,
			DatasetID:     "d1",
			Failures:      []pipeline.FileFailure{{File: "s3://b/x.pdf", Error: "extract: corrupt"}},
		}}
		server := setupTestServer(t, svc)

		rec := do(t, server, http.MethodPost, "/ingest", `{"files":["s3://b/a.txt","s3://b/x.pdf"],"datasetId":"d1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"message": "Files successfully ingested and stored in the vector database",
			"ingestedFiles": 1,
			"datasetId": "d1",
			"failedFiles": [{"file_url": "s3://b/x.pdf", "error": "extract: corrupt"}]
		}`, rec.Body.String())
		assert.Equal(t, []string{"s3://b/a.txt", "s3://b/x.pdf"}, svc.ingestFiles)
		assert.Equal(t, "d1", svc.ingestDataset)
		assert.NotEmpty(t, svc.requestID)
		assert.Equal(t, svc.requestID, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("omits failedFiles when empty", func(t *testing.T) {
		svc := &fakeService{ingestResult: &pipeline.IngestResult{IngestedFiles: 2, DatasetID: "d1"}}
		server := setupTestServer(t, svc)

		rec := do(t, server, http.MethodPost, "/ingest", `{"files":["a","b"],"datasetId":"d1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "failedFiles")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := setupTestServer(t, &fakeService{})

		rec := do(t, server, http.MethodPost, "/ingest", `{"files":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeError(t, rec).Kind)
	})

	t.Run("body too large", func(t *testing.T) {
		server := setupTestServer(t, &fakeService{})

		body := `{"files":["` + strings.Repeat("x", 2048) + `"],"datasetId":"d1"}`
		rec := do(t, server, http.MethodPost, "/ingest", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", apperr.Invalid("datasetId is required"), http.StatusBadRequest, "validation"},
		{"fetch", apperr.New(apperr.KindFetch, "fetch", errors.New("no such key")), http.StatusUnprocessableEntity, "fetch"},
		{"extraction", apperr.New(apperr.KindExtraction, "extract", errors.New("bad pdf")), http.StatusUnprocessableEntity, "extraction"},
		{"embedding", apperr.New(apperr.KindEmbedding, "embed query", errors.New("model down")), http.StatusBadGateway, "embedding"},
		{"index", apperr.New(apperr.KindIndex, "search", errors.New("unavailable")), http.StatusServiceUnavailable, "index"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, &fakeService{err: tt.err})

			rec := do(t, server, http.MethodPost, "/retrieve", `{"prompt":"q","datasetId":"d1"}`)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, apperr.Message(tt.err), body.Message)
		})
	}
}

func TestHandleRetrieve(t *testing.T) {
	svc := &fakeService{retrieved: []string{"first", "second"}}
	server := setupTestServer(t, svc)

	rec := do(t, server, http.MethodPost, "/retrieve", `{"prompt":"what?","datasetId":"d1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chunks":[{"chunk":"first"},{"chunk":"second"}]}`, rec.Body.String())

	svc.retrieved = nil
	rec = do(t, server, http.MethodPost, "/retrieve", `{"prompt":"what?","datasetId":"d1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chunks":[]}`, rec.Body.String())
}

func TestHandleDelete(t *testing.T) {
	svc := &fakeService{}
	server := setupTestServer(t, svc)

	rec := do(t, server, http.MethodDelete, "/datasets/d1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"All data associated with datasetId 'd1' has been deleted."}`, rec.Body.String())
	assert.Equal(t, "d1", svc.deleted)
}

func TestHandleListing(t *testing.T) {
	svc := &fakeService{
		datasets: []string{"a", "b"},
		chunks:   []pipeline.ChunkRecord{{ID: "1", Chunk: "hello", Source: "s3://b/a.txt", Position: 0}},
	}
	server := setupTestServer(t, svc)

	rec := do(t, server, http.MethodGet, "/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"datasets":["a","b"]}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/datasets/a/chunks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"datasetId":"a","chunks":[{"id":"1","chunk":"hello","source":"s3://b/a.txt","position":0}]}`, rec.Body.String())

	svc.datasets, svc.chunks = nil, nil
	rec = do(t, server, http.MethodGet, "/datasets", "")
	assert.JSONEq(t, `{"datasets":[]}`, rec.Body.String())
	rec = do(t, server, http.MethodGet, "/datasets/a/chunks", "")
	assert.JSONEq(t, `{"datasetId":"a","chunks":[]}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	server := setupTestServer(t, &fakeService{})

	rec := do(t, server, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "http", decodeError(t, rec).Kind)
}

func TestRequestLogging(t *testing.T) {
	logger := logging.NewTestLogger()
	server, err := NewServer(&fakeService{err: errors.New("boom")}, logger.Logger, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(`{"prompt":"q","datasetId":"d"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	logger.AssertLogged(t, zapcore.ErrorLevel, "request failed")
	entries := logger.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusInternalServerError), entries[0].ContextMap()["status"])
	logger.AssertField(t, "http request", "request.id", "req-123")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	server, err := NewServer(&fakeService{}, logging.Nop(), nil, WithRegistry(reg))
	require.NoError(t, err)

	do(t, server, http.MethodGet, "/health", "")
	do(t, server, http.MethodDelete, "/datasets/secret-id", "")

	rec := do(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ragd_http_requests_total{endpoint="/health",method="GET",status="200"} 1`)
	assert.Contains(t, body, `endpoint="/datasets/:datasetId"`)
	assert.NotContains(t, body, "secret-id")
}
