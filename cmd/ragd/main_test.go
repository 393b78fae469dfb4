package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTEI embeds text onto keyword counts in the first three of 384 dims.
func fakeTEI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			v := make([]float32, 384)
			for j := range v {
				v[j] = 0.001
			}
			lower := strings.ToLower(in)
			v[0] += float32(strings.Count(lower, "invoice"))
			v[1] += float32(strings.Count(lower, "holiday"))
			v[2] += float32(strings.Count(lower, "printer"))
			out[i] = v
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tei := fakeTEI(t)
	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/billing.txt":
			fmt.Fprint(w, "Every invoice is due in thirty days. Late invoice fees apply.")
		case "/office.txt":
			fmt.Fprint(w, "The printer is on the second floor. Holiday hours are posted.")
		default:
			http.NotFound(w, r)
		}
	}))
	defer docs.Close()

	port := freePort(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERVER_HTTP_HOST", "127.0.0.1")
	t.Setenv("SERVER_HTTP_PORT", fmt.Sprint(port))
	t.Setenv("VECTORSTORE_PROVIDER", "memory")
	t.Setenv("EMBEDDING_PROVIDER", "tei")
	t.Setenv("EMBEDDING_BASE_URL", tei.URL)
	t.Setenv("EMBEDDING_RATE_LIMIT", "0")
	t.Setenv("FETCH_TEMP_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "warn")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp := postJSON(t, base+"/ingest", map[string]any{
		"files":     []string{docs.URL + "/billing.txt", docs.URL + "/office.txt", docs.URL + "/gone.txt"},
		"datasetId": "handbook",
	})
	var ingest struct {
		IngestedFiles int `json:"ingestedFiles"`
		FailedFiles   []struct {
			File  string `json:"file_url"`
			Error string `json:"error"`
		} `json:"failedFiles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ingest))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, ingest.IngestedFiles)
	require.Len(t, ingest.FailedFiles, 1)
	assert.Equal(t, docs.URL+"/gone.txt", ingest.FailedFiles[0].File)

	resp = postJSON(t, base+"/retrieve", map[string]string{"prompt": "invoice", "datasetId": "handbook"})
	var retrieved struct {
		Chunks []struct {
			Chunk string `json:"chunk"`
		} `json:"chunks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&retrieved))
	resp.Body.Close()
	require.NotEmpty(t, retrieved.Chunks)
	assert.Contains(t, retrieved.Chunks[0].Chunk, "invoice")

	req, err := http.NewRequest(http.MethodDelete, base+"/datasets/handbook", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, base+"/retrieve", map[string]string{"prompt": "invoice", "datasetId": "handbook"})
	retrieved.Chunks = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&retrieved))
	resp.Body.Close()
	assert.Empty(t, retrieved.Chunks)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
