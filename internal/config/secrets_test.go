package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "vault" }

func (failingProvider) Lookup(string) (string, bool, error) {
	return "", false, errors.New("sealed")
}

func TestSecretResolver_Order(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("GROQ_API_KEY=from-dotenv\n"), 0600))

	static := StaticProvider{Values: map[string]Secret{"GROQ_API_KEY": "from-config"}}

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "from-env")
		r := NewSecretResolver(EnvProvider{}, DotenvProvider{Path: dotenv}, static)
		s, err := r.Resolve("GROQ_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "from-env", s.Value())
	})

	t.Run("blank environment falls through to dotenv", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "  ")
		r := NewSecretResolver(EnvProvider{}, DotenvProvider{Path: dotenv}, static)
		s, err := r.Resolve("GROQ_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", s.Value())
	})

	t.Run("missing dotenv falls through to config", func(t *testing.T) {
		r := NewSecretResolver(DotenvProvider{Path: filepath.Join(dir, "absent.env")}, static)
		s, err := r.Resolve("GROQ_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "from-config", s.Value())
	})
}

func TestSecretResolver_Missing(t *testing.T) {
	r := NewSecretResolver(DotenvProvider{Path: filepath.Join(t.TempDir(), ".env")}, StaticProvider{})
	_, err := r.Resolve("GROQ_API_KEY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
	assert.Contains(t, err.Error(), "config")
}

func TestSecretResolver_ProviderError(t *testing.T) {
	r := NewSecretResolver(failingProvider{}, StaticProvider{Values: map[string]Secret{"K": "v"}})
	_, err := r.Resolve("K")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault")
	assert.NotErrorIs(t, err, ErrMissingSecret)
}

func TestConfig_LLMSecretResolver(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKeyEnv = "TAXRAG_TEST_GROQ_KEY"
	cfg.LLM.DotenvPath = filepath.Join(t.TempDir(), ".env")
	cfg.LLM.APIKey = "configured"

	s, err := cfg.LLMSecretResolver().Resolve(cfg.LLM.APIKeyEnv)
	require.NoError(t, err)
	assert.Equal(t, "configured", s.Value())
}
