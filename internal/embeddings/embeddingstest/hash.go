// Package embeddingstest provides a deterministic embedding provider for
// tests.
package embeddingstest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// DefaultDimension is used when NewHashProvider is given a non-positive size.
const DefaultDimension = 64

// HashProvider embeds text as a bag of words: every lowercased word adds one
// to a hashed dimension, a constant bias dimension keeps vectors non-zero,
// and results are unit length. Texts that share words are close in cosine
// distance.
type HashProvider struct {
	dim int

	mu      sync.Mutex
	calls   int
	failing error
}

// NewHashProvider returns a HashProvider with dim dimensions.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 1 {
		dim = DefaultDimension
	}
	return &HashProvider{dim: dim}
}

// Fail makes subsequent calls return err. Pass nil to recover.
func (h *HashProvider) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing = err
}

// Calls returns the number of embed calls made.
func (h *HashProvider) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *HashProvider) begin() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.failing
}

// Embed returns the vector for text.
func (h *HashProvider) Embed(text string) []float32 {
	v := make([]float32, h.dim)
	v[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[1+f.Sum32()%uint32(h.dim-1)]++
	}
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// EmbedDocuments implements vectorstore.Embedder.
func (h *HashProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if err := h.begin(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, errors.New("no texts")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.Embed(t)
	}
	return out, nil
}

// EmbedQuery implements vectorstore.Embedder.
func (h *HashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if err := h.begin(); err != nil {
		return nil, err
	}
	return h.Embed(text), nil
}

// Dimension implements embeddings.Provider.
func (h *HashProvider) Dimension() int { return h.dim }

// Close implements embeddings.Provider.
func (h *HashProvider) Close() error { return nil }
