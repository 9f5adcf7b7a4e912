package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/config"
)

// NewStore creates a Store based on cfg.VectorStore.Provider:
//   - "chromem" (default): embedded ChromemStore under cfg.Data.IndexDir()
//   - "qdrant": QdrantStore (requires an external Qdrant server)
//
// The vector size of either backend is cfg.Embeddings.Dimension.
func NewStore(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		path := cfg.VectorStore.Chromem.Path
		if path == "" {
			path = cfg.Data.IndexDir()
		}
		return NewChromemStore(ChromemConfig{
			Path:       path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			VectorSize: cfg.Embeddings.Dimension,
		}, embedder, logger)

	case "qdrant":
		q := cfg.VectorStore.Qdrant
		return NewQdrantStore(QdrantConfig{
			Host:           q.Host,
			Port:           q.Port,
			VectorSize:     cfg.Embeddings.Dimension,
			UseTLS:         q.UseTLS,
			APIKey:         q.APIKey.Value(),
			MaxMessageSize: q.MaxMessageSize,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
