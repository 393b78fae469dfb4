package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the ragd config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ragd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestLoadWithFile_Defaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "documents", cfg.Qdrant.Collection)
	assert.Equal(t, uint64(384), cfg.Qdrant.VectorSize)
	assert.Equal(t, 500, cfg.Chunking.MaxSize)
	assert.Equal(t, "/tmp", cfg.Fetch.TempDir)
	assert.Equal(t, "us-east-1", cfg.AWS.RegionName)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.ModelName)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `server:
  http_port: 9191
qdrant:
  host: qdrant.internal
  collection: corpus
chunking:
  max_size: 300
  segmenter: regex
fetch:
  timeout: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "corpus", cfg.Qdrant.Collection)
	assert.Equal(t, 300, cfg.Chunking.MaxSize)
	assert.Equal(t, SegmenterRegex, cfg.Chunking.Segmenter)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout.Duration())
	// Untouched keys keep defaults.
	assert.Equal(t, 6334, cfg.Qdrant.Port)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrant:\n  host: from-file\n"), 0600))

	t.Setenv("QDRANT_HOST", "from-env")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "s3cr3t")
	t.Setenv("AWS_REGION_NAME", "eu-west-1")
	t.Setenv("EMBEDDING_MODEL_NAME", "BAAI/bge-small-en-v1.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Qdrant.Host)
	assert.Equal(t, "s3cr3t", cfg.AWS.SecretAccessKey.Value())
	assert.Equal(t, "eu-west-1", cfg.AWS.RegionName)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.ModelName)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 8000\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vectorstore:\n  provider: sqlite\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vectorstore provider")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"QDRANT_HOST", "qdrant.host"},
		{"AWS_ACCESS_KEY_ID", "aws.access_key_id"},
		{"SERVER_HTTP_PORT", "server.http_port"},
		{"PATH", ""},
		{"HOME_DIR", ""},
		{"LOG", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero chunk size", func(c *Config) { c.Chunking.MaxSize = 0 }, "max_size must be positive"},
		{"unknown segmenter", func(c *Config) { c.Chunking.Segmenter = "spacy" }, "unknown segmenter"},
		{"tei without url", func(c *Config) {
			c.Embedding.Provider = EmbeddingTEI
			c.Embedding.BaseURL = ""
		}, "base_url is required"},
		{"negative embedding dimension", func(c *Config) { c.Embedding.Dimension = -1 }, "dimension must not be negative"},
		{"memory provider skips qdrant host", func(c *Config) {
			c.VectorStore.Provider = ProviderMemory
			c.Qdrant.Host = ""
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(out))

	var back Secret
	assert.Error(t, json.Unmarshal([]byte(`"[REDACTED]"`), &back))
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	require.NoError(t, d.UnmarshalText([]byte("90")))
	assert.Equal(t, 90*time.Second, d.Duration())
}

func TestLoad_DurationFromBareSeconds(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "45")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout.Duration())
}
