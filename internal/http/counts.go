package http

import (
	"context"
)

// IndexStatus is the part of index.Indexer that /health reports on.
type IndexStatus interface {
	Active() string
	Count(ctx context.Context) (int, error)
}

// CountDocuments returns the number of documents in the active collection,
// or -1 when it cannot be determined.
func CountDocuments(ctx context.Context, ix IndexStatus) int {
	if ix == nil {
		return -1
	}
	n, err := ix.Count(ctx)
	if err != nil {
		return -1
	}
	return n
}
