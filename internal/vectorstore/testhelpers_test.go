package vectorstore

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDim = 64

// hashEmbedder is a deterministic bag-of-words embedder: each lowercased
// word increments one hashed dimension. Texts sharing words are close.
type hashEmbedder struct {
	dim   int
	calls int
}

func (h *hashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%uint32(h.dim)]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	h.calls++
	return h.embed(text), nil
}

func createTestChromemStore(t *testing.T) (*ChromemStore, *hashEmbedder) {
	t.Helper()
	embedder := &hashEmbedder{dim: testDim}
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir(), VectorSize: testDim}, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, embedder
}
