// Package index maintains the searchable chunk collection.
//
// Each full rebuild writes a new generation collection named
// <base>_<8 hex chars>, then atomically replaces the active.json pointer and
// drops the previous generation. Readers always resolve the collection
// through the pointer, so a search never sees a half-built index.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	"github.com/fyrsmithlabs/taxrag/internal/vectorstore"
)

// PointerFile names the active generation pointer inside Config.Dir.
const PointerFile = "active.json"

// ErrNoChunks is returned when building from an empty chunk list.
var ErrNoChunks = errors.New("no chunks to index")

var tracer = otel.Tracer("taxrag.index")

// Config configures an Indexer.
type Config struct {
	// Dir holds the active.json pointer.
	Dir string
	// Base is the collection name prefix, e.g. tax_documents.
	Base string
	// BatchSize is the number of chunks embedded per request. Default: 32.
	BatchSize int
	// Dimension is the embedding dimension of new collections.
	Dimension int
}

// Pointer is the content of active.json.
type Pointer struct {
	Collection string    `json:"collection"`
	Documents  int       `json:"documents"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Hit is one retrieved chunk.
type Hit struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float32 `json:"distance"`
}

// Stats summarises a Build or Rebuild.
type Stats struct {
	Collection string
	Documents  int
	Batches    int
	// Skipped is set when Build found an already populated collection.
	Skipped bool
}

// Indexer builds and searches the active collection.
type Indexer struct {
	store  vectorstore.Store
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	active string
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New creates an Indexer and loads the active pointer if one exists.
func New(store vectorstore.Store, cfg Config, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: index dir is required", vectorstore.ErrInvalidConfig)
	}
	if err := vectorstore.ValidateCollectionName(cfg.Base); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	ix := &Indexer{store: store, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ix)
	}
	if err := ix.Reload(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Active returns the collection searches currently read from. Before the
// first build it is the base name.
func (ix *Indexer) Active() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.active
}

// PointerPath returns the location of active.json.
func (ix *Indexer) PointerPath() string {
	return filepath.Join(ix.cfg.Dir, PointerFile)
}

// Reload re-reads active.json. A missing pointer selects the base name.
func (ix *Indexer) Reload() error {
	p, err := ReadPointer(ix.PointerPath())
	if err != nil {
		return err
	}
	active := ix.cfg.Base
	if p != nil {
		active = p.Collection
	}

	ix.mu.RLock()
	current := ix.active
	ix.mu.RUnlock()
	if current == active {
		return nil
	}

	// the store must see the new generation before searches are routed to it
	if r, ok := ix.store.(vectorstore.Reopener); ok && current != "" {
		if err := r.Reopen(); err != nil {
			return err
		}
	}

	ix.mu.Lock()
	ix.active = active
	ix.mu.Unlock()
	ix.logger.Info("active index collection", zap.String("collection", active))
	return nil
}

// ReadPointer reads a pointer file. A missing file returns nil, nil.
func ReadPointer(path string) (*Pointer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := vectorstore.ValidateCollectionName(p.Collection); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &p, nil
}

func writePointer(path string, p Pointer) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return corpus.WriteFileAtomic(path, data)
}

// Count returns the number of documents in the active collection, 0 when it
// does not exist yet.
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	info, err := ix.store.GetCollectionInfo(ctx, ix.Active())
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return info.PointCount, nil
}

// Build indexes chunks unless the active collection already has entries.
func (ix *Indexer) Build(ctx context.Context, chunks []corpus.Chunk) (*Stats, error) {
	n, err := ix.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting active collection: %w", err)
	}
	if n > 0 {
		ix.logger.Info("index already populated, skipping build",
			zap.String("collection", ix.Active()),
			zap.Int("documents", n),
		)
		return &Stats{Collection: ix.Active(), Documents: n, Skipped: true}, nil
	}
	return ix.Rebuild(ctx, chunks)
}

// Rebuild indexes chunks into a fresh generation and swaps it in. On error
// the previous generation stays active and the partial one is removed.
func (ix *Indexer) Rebuild(ctx context.Context, chunks []corpus.Chunk) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "index.Rebuild")
	defer span.End()

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	generation := ix.cfg.Base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	span.SetAttributes(
		attribute.String("collection", generation),
		attribute.Int("chunks", len(chunks)),
	)

	if err := ix.store.CreateCollection(ctx, generation, ix.cfg.Dimension); err != nil {
		return nil, fmt.Errorf("creating generation %s: %w", generation, err)
	}

	stats := &Stats{Collection: generation}
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(chunks))
		if err := ix.store.AddDocuments(ctx, generation, toDocuments(chunks[start:end])); err != nil {
			ix.discard(ctx, generation)
			return nil, fmt.Errorf("indexing batch %d-%d: %w", start, end, err)
		}
		stats.Batches++
		stats.Documents += end - start
		ix.logger.Debug("indexed batch",
			zap.String("collection", generation),
			zap.Int("done", end),
			zap.Int("total", len(chunks)),
		)
	}

	previous := ix.Active()
	if err := writePointer(ix.PointerPath(), Pointer{
		Collection: generation,
		Documents:  stats.Documents,
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		ix.discard(ctx, generation)
		return nil, fmt.Errorf("writing index pointer: %w", err)
	}

	ix.mu.Lock()
	ix.active = generation
	ix.mu.Unlock()

	if previous != generation {
		ix.discard(ctx, previous)
	}

	ix.logger.Info("index rebuilt",
		zap.String("collection", generation),
		zap.String("previous", previous),
		zap.Int("documents", stats.Documents),
	)
	return stats, nil
}

// discard deletes a collection if it exists, logging failures.
func (ix *Indexer) discard(ctx context.Context, collection string) {
	exists, err := ix.store.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return
	}
	if err := ix.store.DeleteCollection(ctx, collection); err != nil {
		ix.logger.Warn("failed to delete collection", zap.String("collection", collection), zap.Error(err))
	}
}

func toDocuments(chunks []corpus.Chunk) []vectorstore.Document {
	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:      strconv.Itoa(c.ID),
			Content: c.Text,
			Metadata: map[string]interface{}{
				"source":      c.Source,
				"title":       c.Title,
				"chunk_index": c.ChunkIndex,
			},
		}
	}
	return docs
}

// Search returns up to k chunks nearest to query, closest first. An index
// that has never been built yields no hits.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "index.Search")
	defer span.End()

	collection := ix.Active()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("k", k))

	results, err := ix.store.Search(ctx, collection, query, k)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			ix.logger.Warn("index collection not found; run `taxrag index` first", zap.String("collection", collection))
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		idx, _ := vectorstore.MetadataInt(r.Metadata, "chunk_index")
		hits[i] = Hit{
			ID:         r.ID,
			Text:       r.Content,
			Source:     vectorstore.MetadataString(r.Metadata, "source"),
			Title:      vectorstore.MetadataString(r.Metadata, "title"),
			ChunkIndex: idx,
			Distance:   r.Distance,
		}
	}
	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}
