package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const chromemBackend = "chromem"

var chromemTracer = otel.Tracer("taxrag.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension. Default: 384.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store on an embedded, persistent chromem-go DB.
// Every collection uses cosine similarity over normalized vectors.
type ChromemStore struct {
	mu       sync.RWMutex
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore opens (or creates) the database at config.Path.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	config.Path = expandedPath

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

func (s *ChromemStore) database() *chromem.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Reopen reloads the database from disk, picking up collections written by
// another process.
func (s *ChromemStore) Reopen() error {
	db, err := chromem.NewPersistentDB(s.config.Path, s.config.Compress)
	if err != nil {
		return fmt.Errorf("reopening chromem DB: %w", err)
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	s.logger.Debug("chromem store reopened", zap.String("path", s.config.Path))
	return nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc must be passed on every collection lookup; chromem-go falls
// back to its OpenAI embedder when given nil.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddDocuments embeds docs and upserts them into collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) (err error) {
	defer observe(chromemBackend, "add_documents", time.Now(), &err)

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document at index %d has no id", i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	coll, err := s.database().GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if len(embeddings[i]) != s.config.VectorSize {
			return fmt.Errorf("%w: embedding has %d dimensions, collection expects %d",
				ErrEmbeddingFailed, len(embeddings[i]), s.config.VectorSize)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  convertMetadataToString(doc.Metadata),
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := coll.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	DocumentsAdded.WithLabelValues(chromemBackend).Add(float64(len(docs)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Search returns up to k documents nearest to query.
func (s *ChromemStore) Search(ctx context.Context, collection string, query string, k int) (results []SearchResult, err error) {
	defer observe(chromemBackend, "search", time.Now(), &err)

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	coll := s.database().GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// chromem requires nResults <= document count.
	docCount := coll.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	hits, err := coll.QueryEmbedding(ctx, queryVector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results = make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		r, err := NewSearchResult(h.ID, h.Content, convertMetadataFromString(h.Metadata), distanceFromSimilarity(h.Similarity))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	sortByDistance(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// CreateCollection creates an empty collection.
func (s *ChromemStore) CreateCollection(ctx context.Context, collection string, vectorSize int) (err error) {
	defer observe(chromemBackend, "create_collection", time.Now(), &err)

	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if vectorSize == 0 {
		vectorSize = s.config.VectorSize
	}
	if vectorSize != s.config.VectorSize {
		return fmt.Errorf("vector size %d does not match configured size %d", vectorSize, s.config.VectorSize)
	}
	if existing := s.database().GetCollection(collection, s.embeddingFunc()); existing != nil {
		return ErrCollectionExists
	}

	metadata := map[string]string{"vector_size": strconv.Itoa(vectorSize), "distance": "cosine"}
	if _, err := s.database().CreateCollection(collection, metadata, s.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("created chromem collection",
		zap.String("collection", collection),
		zap.Int("vector_size", vectorSize),
	)
	return nil
}

// DeleteCollection removes a collection and its files.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collection string) (err error) {
	defer observe(chromemBackend, "delete_collection", time.Now(), &err)

	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := s.database().DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.logger.Info("deleted chromem collection", zap.String("collection", collection))
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return false, err
	}
	return s.database().GetCollection(collection, s.embeddingFunc()) != nil, nil
}

// ListCollections returns collection names in lexical order.
func (s *ChromemStore) ListCollections(_ context.Context) ([]string, error) {
	collections := s.database().ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(_ context.Context, collection string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	coll := s.database().GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		return nil, ErrCollectionNotFound
	}
	return &CollectionInfo{
		Name:       collection,
		PointCount: coll.Count(),
		VectorSize: s.config.VectorSize,
	}, nil
}

// Close is a no-op; chromem-go persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed")
	return nil
}

// convertMetadataToString converts metadata values to strings for chromem.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

var _ Store = (*ChromemStore)(nil)
