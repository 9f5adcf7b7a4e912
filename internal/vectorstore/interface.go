package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// Implementations:
//   - ChromemStore: Embedded chromem-go (default)
//   - QdrantStore: External Qdrant gRPC client
type Store interface {
	// AddDocuments embeds docs and upserts them into collection, creating
	// the collection if needed. Documents are keyed by ID.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// Search embeds query and returns up to k results ordered by ascending
	// distance. Returns ErrCollectionNotFound for a missing collection.
	Search(ctx context.Context, collection string, query string, k int) ([]SearchResult, error)

	// CreateCollection creates a cosine-distance collection for vectors of
	// vectorSize dimensions. Returns ErrCollectionExists if present.
	CreateCollection(ctx context.Context, collection string, vectorSize int) error

	// DeleteCollection deletes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns the point count and vector size of a
	// collection, or ErrCollectionNotFound.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Close releases the store's resources.
	Close() error
}

// Reopener is implemented by stores that cache on-disk state in memory and
// can reload it.
type Reopener interface {
	Reopen() error
}
