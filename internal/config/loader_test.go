package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir so the default path is isolated.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.yaml", `
crawler:
  max_pages: 12
  timeout: 3s
chunker:
  size: 500
  overlap: 100
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
llm:
  model: llama-3.1-8b-instant
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Crawler.MaxPages)
	assert.Equal(t, 3*time.Second, cfg.Crawler.Timeout.Duration())
	assert.Equal(t, 500, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)

	// untouched values keep their defaults
	assert.Equal(t, "tax_documents", cfg.Index.Collection)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
}

func TestLoadWithFile_ValidTOML(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.toml", `
[index]
collection = "customs_docs"
batch_size = 16

[llm]
max_tokens = 512
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "customs_docs", cfg.Index.Collection)
	assert.Equal(t, 16, cfg.Index.BatchSize)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.yaml", `
llm:
  model: from-yaml
server:
  port: 9000
`)

	t.Setenv("TAXRAG_LLM_MODEL", "from-env")
	t.Setenv("TAXRAG_VECTORSTORE_QDRANT_HOST", "qdrant.env")
	t.Setenv("TAXRAG_CHUNKER_OVERLAP", "150")
	t.Setenv("TAXRAG_LLM_API_KEY", "gsk_from_env")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "qdrant.env", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 150, cfg.Chunker.Overlap)
	assert.Equal(t, "gsk_from_env", cfg.LLM.APIKey.Value())
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadWithFile_PortEnv(t *testing.T) {
	setupTestHome(t)
	t.Setenv("PORT", "8088")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)

	t.Setenv("PORT", "eighty")
	_, err = LoadWithFile("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadWithFile_DefaultPathMissing(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_DefaultPathPresent(t *testing.T) {
	home := setupTestHome(t)
	require.NoError(t, EnsureConfigDir())
	writeConfig(t, filepath.Join(home, ".config", "taxrag"), "config.yaml", "data:\n  dir: /srv/taxrag\n")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/taxrag", cfg.Data.Dir)
}

func TestLoadWithFile_ExplicitMissingFile(t *testing.T) {
	setupTestHome(t)
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.yaml", "chunker: [unclosed")
	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_UnsupportedExtension(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.ini", "x=1")
	_, err := LoadWithFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadWithFile_Validation(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.yaml", "chunker:\n  size: 0\n")
	_, err := LoadWithFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	setupTestHome(t)
	path := writeConfig(t, t.TempDir(), "config.yaml", "data:\n  dir: x\n")
	require.NoError(t, os.Chmod(path, 0666))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	setupTestHome(t)
	big := make([]byte, maxConfigFileSize+10)
	for i := range big {
		big[i] = '#'
	}
	path := writeConfig(t, t.TempDir(), "config.yaml", string(big))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"TAXRAG_LLM_MODEL":                 "llm.model",
		"TAXRAG_LLM_API_KEY":               "llm.api_key",
		"TAXRAG_SERVER_SHUTDOWN_TIMEOUT":   "server.shutdown_timeout",
		"TAXRAG_VECTORSTORE_PROVIDER":      "vectorstore.provider",
		"TAXRAG_VECTORSTORE_QDRANT_USE_TLS": "vectorstore.qdrant.use_tls",
		"TAXRAG_VECTORSTORE_CHROMEM_PATH":  "vectorstore.chromem.path",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestTOMLParser_RoundTrip(t *testing.T) {
	p := TOMLParser()
	m, err := p.Unmarshal([]byte("[server]\nport = 8080\n"))
	require.NoError(t, err)

	out, err := p.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), "port = 8080")
}
