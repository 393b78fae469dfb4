//go:build cgo

package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformArchive(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := platformArchive(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := platformArchive("windows", "amd64")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", libraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", libraryName("darwin"))
}

func buildTarball(t *testing.T, files map[string]string, links map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	for name, target := range links {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Linkname: target, Typeflag: tar.TypeSymlink}))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractLibraries(t *testing.T) {
	prefix := "onnxruntime-linux-x64-1.23.0/lib/"
	archive := buildTarball(t,
		map[string]string{
			prefix + "libonnxruntime.so.1.23.0":        "lib",
			"onnxruntime-linux-x64-1.23.0/README.md":   "skip",
			"./" + prefix + "libonnxruntime_extra.so": "extra",
		},
		map[string]string{
			prefix + "libonnxruntime.so": "libonnxruntime.so.1.23.0",
			prefix + "evil.so":           "../../etc/passwd",
		},
	)

	dir := t.TempDir()
	require.NoError(t, extractLibraries(bytes.NewReader(archive), dir, prefix, "libonnxruntime.so"))

	data, err := os.ReadFile(filepath.Join(dir, "libonnxruntime.so"))
	require.NoError(t, err)
	assert.Equal(t, "lib", string(data))
	assert.FileExists(t, filepath.Join(dir, "libonnxruntime_extra.so"))
	assert.NoFileExists(t, filepath.Join(dir, "README.md"))
	_, err = os.Lstat(filepath.Join(dir, "evil.so"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractLibraries_MissingLibrary(t *testing.T) {
	archive := buildTarball(t, map[string]string{"x/lib/other.so": "x"}, nil)
	err := extractLibraries(bytes.NewReader(archive), t.TempDir(), "x/lib/", "libonnxruntime.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestEnsureONNXRuntime_UsesExistingLibrary(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, libraryName(runtime.GOOS))
	require.NoError(t, os.WriteFile(lib, []byte("lib"), 0644))
	t.Setenv("ONNX_PATH", "")

	got, err := EnsureONNXRuntime(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
	assert.Equal(t, lib, os.Getenv("ONNX_PATH"))
}
