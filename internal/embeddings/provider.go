package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fyrsmithlabs/taxrag/internal/config"
	"github.com/fyrsmithlabs/taxrag/internal/vectorstore"
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "tei", "fastembed" or "openai".
	Provider string
	Model    string
	// BaseURL is used by tei and openai.
	BaseURL string
	// APIKey is used by openai.
	APIKey string
	// CacheDir is used by fastembed.
	CacheDir string
	// Dimension overrides model based detection when positive.
	Dimension    int
	ShowProgress bool
}

// FromSettings maps the user-facing embeddings section to a ProviderConfig.
func FromSettings(s config.EmbeddingsConfig) ProviderConfig {
	return ProviderConfig{
		Provider:     s.Provider,
		Model:        s.Model,
		BaseURL:      s.BaseURL,
		APIKey:       s.APIKey.Value(),
		CacheDir:     s.CacheDir,
		Dimension:    s.Dimension,
		ShowProgress: s.ShowProgress,
	}
}

var knownDimensions = map[string]int{
	"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2": 384,
	"sentence-transformers/paraphrase-multilingual-mpnet-base-v2": 768,
	"intfloat/multilingual-e5-small":                              384,
	"intfloat/multilingual-e5-base":                               768,
	"BAAI/bge-m3":                                                 1024,
	"BAAI/bge-small-en-v1.5":                                      384,
	"BAAI/bge-small-en":                                           384,
	"BAAI/bge-base-en-v1.5":                                       768,
	"BAAI/bge-base-en":                                            768,
	"BAAI/bge-small-zh-v1.5":                                      512,
	"sentence-transformers/all-MiniLM-L6-v2":                      384,
	"fast-bge-small-en-v1.5":                                      384,
	"fast-bge-small-en":                                           384,
	"fast-bge-base-en-v1.5":                                       768,
	"fast-bge-base-en":                                            768,
	"fast-bge-small-zh-v1.5":                                      512,
	"fast-all-MiniLM-L6-v2":                                       384,
	"text-embedding-3-small":                                      1536,
	"text-embedding-3-large":                                      3072,
}

func fastEmbedModelDimension(model string) (int, bool) {
	dim, ok := knownDimensions[model]
	return dim, ok
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
// The result normalizes every vector to unit length.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	var inner Provider
	switch cfg.Provider {
	case "tei", "":
		svc, err := NewService(Config{BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		inner = &teiProvider{Service: svc, dimension: dim}
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:        cfg.Model,
			CacheDir:     cfg.CacheDir,
			ShowProgress: cfg.ShowProgress,
		})
		if err != nil {
			return nil, err
		}
		inner = p
	case "openai":
		p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey}, dim)
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	return Normalized(inner), nil
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

func (t *teiProvider) Dimension() int { return t.dimension }

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error { return nil }

// Normalized wraps p so returned vectors have unit L2 norm.
func Normalized(p Provider) Provider {
	if _, ok := p.(*normalizing); ok {
		return p
	}
	return &normalizing{Provider: p}
}

type normalizing struct {
	Provider
}

func (n *normalizing) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := n.Provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range vectors {
		Normalize(vectors[i])
	}
	return vectors, nil
}

func (n *normalizing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := n.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	Normalize(vector)
	return vector, nil
}

// Normalize scales v in place to unit L2 norm. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
