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

// DefaultONNXRuntimeVersion is the ONNX runtime version matching onnxruntime_go.
const DefaultONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch is not supported.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

const onnxReleaseURLTemplate = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

var platformArchMap = map[string]map[string]string{
	"linux": {
		"amd64": "linux-x64",
		"arm64": "linux-aarch64",
	},
	"darwin": {
		"amd64": "osx-x86_64",
		"arm64": "osx-arm64",
	},
}

var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func getPlatformArchive(goos, goarch string) (string, error) {
	arch, ok := platformArchMap[goos][goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return arch, nil
}

func getLibraryName(goos string) string {
	if name, ok := libraryNames[goos]; ok {
		return name
	}
	return "libonnxruntime.so"
}

// ONNXInstallDir returns ~/.config/taxrag/lib.
func ONNXInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "taxrag", "lib")
}

// GetONNXLibraryPath returns the ONNX runtime library, checking ONNX_PATH
// first and then the managed install directory. Empty when not found.
func GetONNXLibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}
	managedPath := filepath.Join(ONNXInstallDir(), getLibraryName(runtime.GOOS))
	if _, err := os.Stat(managedPath); err == nil {
		return managedPath
	}
	return ""
}

func buildDownloadURL(version, platform string) string {
	return fmt.Sprintf(onnxReleaseURLTemplate, version, platform, version)
}

// ONNXInstaller downloads the ONNX runtime used by the fastembed provider.
type ONNXInstaller struct {
	Version string
	DestDir string
	Client  *http.Client
	// Out receives progress lines. Nil discards them.
	Out io.Writer

	// urlFor is replaced in tests.
	urlFor func(version, platform string) string
}

// Ensure returns the library path, downloading the runtime when it is not
// already installed, and exports ONNX_PATH for fastembed-go.
func (i *ONNXInstaller) Ensure(ctx context.Context) (string, error) {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath, nil
	}
	destDir := i.DestDir
	if destDir == "" {
		destDir = ONNXInstallDir()
	}
	existing := filepath.Join(destDir, getLibraryName(runtime.GOOS))
	if _, err := os.Stat(existing); err == nil {
		return existing, os.Setenv("ONNX_PATH", existing)
	}
	path, err := i.Download(ctx)
	if err != nil {
		return "", err
	}
	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return path, nil
}

// Download fetches and extracts the runtime for the current platform and
// returns the path of the main library.
func (i *ONNXInstaller) Download(ctx context.Context) (string, error) {
	version := i.Version
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	destDir := i.DestDir
	if destDir == "" {
		destDir = ONNXInstallDir()
	}
	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	urlFor := i.urlFor
	if urlFor == nil {
		urlFor = buildDownloadURL
	}
	out := i.Out
	if out == nil {
		out = io.Discard
	}

	platform, err := getPlatformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	fmt.Fprintf(out, "Downloading ONNX runtime v%s for %s/%s...\n", version, runtime.GOOS, runtime.GOARCH)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlFor(version, platform), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	libName := getLibraryName(runtime.GOOS)
	if err := extractTarGz(resp.Body, destDir, fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version), libName); err != nil {
		return "", fmt.Errorf("extracting archive: %w", err)
	}

	path := filepath.Join(destDir, libName)
	fmt.Fprintf(out, "Installed %s\n", path)
	return path, nil
}

// extractTarGz extracts the files under prefix, flattening them into destDir.
func extractTarGz(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var foundMainLib bool

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}

		filename := filepath.Base(name)
		destPath := filepath.Join(destDir, filename)

		if header.Typeflag == tar.TypeSymlink {
			os.Remove(destPath)
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				continue
			}
			if filename == libName {
				foundMainLib = true
			}
			continue
		}

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", filename, err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("writing file %s: %w", filename, err)
		}
		outFile.Close()

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			foundMainLib = true
		}
	}

	if !foundMainLib {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}
