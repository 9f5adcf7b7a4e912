package app

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taxrag/internal/config"
	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	"github.com/fyrsmithlabs/taxrag/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

type staticGenerator struct{ text string }

func (g staticGenerator) Generate(context.Context, string, string) (string, error) {
	return g.text, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Embeddings.Dimension = 64
	cfg.LLM.DotenvPath = filepath.Join(t.TempDir(), "missing.env")
	return cfg
}

func TestNew_Base(t *testing.T) {
	svc, err := New(context.Background(), testConfig(t), Base, WithLogOutput(io.Discard))
	require.NoError(t, err)
	defer svc.Close(context.Background())

	assert.NotNil(t, svc.Logger)
	assert.NotNil(t, svc.Telemetry)
	assert.Nil(t, svc.Embedder)
	assert.Nil(t, svc.Store)
	assert.Nil(t, svc.RAG)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Base)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_Retrieval(t *testing.T) {
	cfg := testConfig(t)
	provider := embeddingstest.NewHashProvider(64)

	svc, err := New(context.Background(), cfg, Retrieval, WithLogOutput(io.Discard), WithEmbedder(provider))
	require.NoError(t, err)
	defer svc.Close(context.Background())

	assert.Same(t, provider, svc.Embedder)
	require.NotNil(t, svc.Store)
	require.NotNil(t, svc.Index)
	assert.Equal(t, "tax_documents", svc.Index.Active())
	assert.Equal(t, filepath.Join(cfg.Data.Dir, "active.json"), svc.Index.PointerPath())
	assert.Nil(t, svc.Generator)
}

func TestNew_AnsweringRequiresAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	cfg := testConfig(t)

	_, err := New(context.Background(), cfg, Answering,
		WithLogOutput(io.Discard),
		WithEmbedder(embeddingstest.NewHashProvider(64)),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingSecret)
}

func TestNew_AnsweringWithKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_from_env")
	var logs bytes.Buffer

	svc, err := New(context.Background(), testConfig(t), Answering,
		WithLogOutput(&logs),
		WithEmbedder(embeddingstest.NewHashProvider(64)),
	)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	assert.NotNil(t, svc.Generator)
	assert.NotNil(t, svc.RAG)
	assert.NotContains(t, logs.String(), "gsk_from_env")
}

func TestServices_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, testConfig(t), Answering,
		WithLogOutput(io.Discard),
		WithEmbedder(embeddingstest.NewHashProvider(64)),
		WithGenerator(staticGenerator{text: "დღგ 18%-ია (წყარო 1)."}),
	)
	require.NoError(t, err)
	defer svc.Close(ctx)

	_, err = svc.Index.Build(ctx, []corpus.Chunk{
		{ID: 0, Text: "დღგ-ის განაკვეთი 18 პროცენტია", Source: "https://infohub.rs.ge/ka/vat", Title: "დღგ", TotalChunks: 1},
	})
	require.NoError(t, err)

	ans, err := svc.RAG.Answer(ctx, "რა არის დღგ-ის განაკვეთი?", 5)
	require.NoError(t, err)
	assert.Equal(t, "დღგ 18%-ია (წყარო 1).", ans.Answer)
	assert.Equal(t, []rag.Source{{Number: 1, Title: "დღგ", URL: "https://infohub.rs.ge/ka/vat"}}, ans.Sources)
}
