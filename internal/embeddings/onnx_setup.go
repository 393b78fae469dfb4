//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ONNXRuntimeVersion must match the onnxruntime_go version pulled in by
// fastembed-go.
const ONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no prebuilt runtime.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var platformArchives = map[string]map[string]string{
	"linux": {
		"amd64": "linux-x64",
		"arm64": "linux-aarch64",
	},
	"darwin": {
		"amd64": "osx-x86_64",
		"arm64": "osx-arm64",
	},
}

func platformArchive(goos, goarch string) (string, error) {
	if arch, ok := platformArchives[goos][goarch]; ok {
		return arch, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func libraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// defaultLibDir is ~/.config/ragd/lib.
func defaultLibDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "ragd", "lib")
}

// findLibrary returns ONNX_PATH if set, else the library under dir if present.
func findLibrary(dir string) string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	p := filepath.Join(dir, libraryName(runtime.GOOS))
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// releaseURL points at the GitHub release tarball for a platform.
var releaseURL = func(version, platform string) string {
	return fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz",
		version, platform, version)
}

// EnsureONNXRuntime makes the ONNX runtime library available to FastEmbed,
// downloading it into dir (default ~/.config/ragd/lib) when missing, and
// exports ONNX_PATH. It returns the library path.
func EnsureONNXRuntime(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = defaultLibDir()
	}
	if p := findLibrary(dir); p != "" {
		return p, os.Setenv("ONNX_PATH", p)
	}

	platform, err := platformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := downloadRuntime(ctx, releaseURL(ONNXRuntimeVersion, platform), dir, ONNXRuntimeVersion, platform); err != nil {
		return "", fmt.Errorf("installing ONNX runtime (set ONNX_PATH to use an existing one): %w", err)
	}

	p := findLibrary(dir)
	if p == "" {
		return "", errors.New("ONNX runtime installed but library not found")
	}
	return p, os.Setenv("ONNX_PATH", p)
}

func downloadRuntime(ctx context.Context, url, dir, version, platform string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return extractLibraries(resp.Body, dir, fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version), libraryName(runtime.GOOS))
}

// extractLibraries copies every file under prefix in the tarball into dir,
// keeping symlinks. It fails if libName is not among them.
func extractLibraries(r io.Reader, dir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if strings.Contains(hdr.Linkname, "/") {
				continue
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == libName || strings.HasPrefix(base, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(dest), err)
	}
	return f.Close()
}
