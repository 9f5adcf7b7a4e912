package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/config"
)

func TestNewStore_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Embeddings.Dimension = testDim

	store, err := NewStore(cfg, &hashEmbedder{dim: testDim}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	chromemStore, ok := store.(*ChromemStore)
	require.True(t, ok)
	assert.Equal(t, cfg.Data.IndexDir(), chromemStore.config.Path)
	assert.Equal(t, testDim, chromemStore.config.VectorSize)
}

func TestNewStore_ChromemExplicitPath(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = t.TempDir()

	store, err := NewStore(cfg, &hashEmbedder{dim: 384}, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.VectorStore.Chromem.Path, store.(*ChromemStore).config.Path)
}

func TestNewStore_Unsupported(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "pinecone"

	_, err := NewStore(cfg, &hashEmbedder{dim: 384}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
