// Package vectorstore provides persistent vector collections with cosine
// distance search.
//
// Two implementations share the Store interface:
//   - ChromemStore: embedded chromem-go database persisted to a directory (default)
//   - QdrantStore: external Qdrant server over its native gRPC client
//
// Stores embed text themselves through the Embedder they are constructed
// with, so callers add and search plain text:
//
//	store, err := vectorstore.NewStore(cfg, provider, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.AddDocuments(ctx, "tax_documents", []vectorstore.Document{
//	    {ID: "0", Content: "დღგ-ის განაკვეთი 18%-ია", Metadata: map[string]interface{}{"source": url}},
//	})
//	results, err := store.Search(ctx, "tax_documents", "რა არის დღგ?", 5)
//
// Results are ordered by ascending distance, where distance is
// 1 - cosine similarity and lies in [0, 2].
//
// Re-adding a document with an existing ID replaces it; a collection never
// holds two records with the same ID.
package vectorstore
