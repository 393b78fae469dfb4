package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

// fakeServer answers every route with a canned status and body and records
// the requests it sees.
func fakeServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.EscapedPath()}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		reqs = append(reqs, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

// execute runs ragctl with args against url and returns stdout.
func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	outputJSON = false
	datasetID = ""
	chunkWidth = 80
	timeout = 5 * time.Second

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--server", url}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	srv, reqs := fakeServer(t, http.StatusOK, `{"status":"ok"}`)

	out, err := execute(t, srv.URL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Equal(t, "/health", (*reqs)[0].path)
}

func TestIngest(t *testing.T) {
	srv, reqs := fakeServer(t, http.StatusOK, `{
		"message": "Files successfully ingested and stored in the vector database",
		"ingestedFiles": 1,
		"datasetId": "hb",
		"failedFiles": [{"file_url": "s3://b/bad.pdf", "error": "extract: corrupt"}]
	}`)

	out, err := execute(t, srv.URL, "ingest", "--dataset", "hb", "s3://b/good.txt", "s3://b/bad.pdf")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/ingest", req.path)
	assert.Equal(t, "hb", req.body["datasetId"])
	assert.Equal(t, []any{"s3://b/good.txt", "s3://b/bad.pdf"}, req.body["files"])

	assert.Contains(t, out, "Ingested: 1 of 2 files")
	assert.Contains(t, out, "s3://b/bad.pdf")
	assert.Contains(t, out, "extract: corrupt")
}

func TestRetrieve(t *testing.T) {
	srv, reqs := fakeServer(t, http.StatusOK, `{"chunks":[{"chunk":"first"},{"chunk":"second"}]}`)

	out, err := execute(t, srv.URL, "retrieve", "-d", "hb", "what is due?")
	require.NoError(t, err)
	assert.Equal(t, "[1] first\n[2] second\n", out)
	assert.Equal(t, "what is due?", (*reqs)[0].body["prompt"])

	out, err = execute(t, srv.URL, "retrieve", "-d", "hb", "--json", "q")
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunks":[{"chunk":"first"},{"chunk":"second"}]}`, out)
}

func TestServerErrorIsReported(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusBadGateway, `{"error":{"kind":"embedding","message":"embed query: model down"}}`)

	_, err := execute(t, srv.URL, "retrieve", "-d", "hb", "q")
	require.Error(t, err)
	assert.Equal(t, "server returned status 502: embedding error: embed query: model down", err.Error())
}

func TestDatasetsAndChunks(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `{"datasets":["a","b"]}`)
	out, err := execute(t, srv.URL, "datasets")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)

	srv, reqs := fakeServer(t, http.StatusOK, `{"datasetId":"a b","chunks":[
		{"id":"1","chunk":"The quick brown fox jumps over the lazy dog","source":"s3://b/a.txt","position":0}
	]}`)
	out, err = execute(t, srv.URL, "chunks", "a b", "--width", "12")
	require.NoError(t, err)
	assert.Equal(t, "/datasets/a%20b/chunks", (*reqs)[0].path)
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "The quick...")
}

func TestDelete(t *testing.T) {
	srv, reqs := fakeServer(t, http.StatusOK, `{"message":"All data associated with datasetId 'hb' has been deleted."}`)

	out, err := execute(t, srv.URL, "delete", "hb")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].method)
	assert.Equal(t, "/datasets/hb", (*reqs)[0].path)
	assert.Contains(t, out, "has been deleted")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"equal to max", "hello", 5, "hello"},
		{"longer than max", "hello world", 8, "hello..."},
		{"very short max", "hello", 3, "..."},
		{"no limit", "hello", 0, "hello"},
		{"multibyte", "héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.maxLen))
		})
	}
}
