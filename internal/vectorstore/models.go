package vectorstore

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
)

// collectionNamePattern validates collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names outside ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Document is a text record to embed and store.
type Document struct {
	// ID is the unique identifier of the record within its collection.
	ID string

	// Content is the text that is embedded and returned by searches.
	Content string

	// Metadata holds string, integer, float and bool values.
	Metadata map[string]interface{}
}

// SearchResult is one nearest-neighbour hit.
type SearchResult struct {
	ID       string
	Content  string
	Metadata map[string]interface{}

	// Distance is 1 - cosine similarity, in [0, 2]. Lower is closer.
	Distance float32
}

// distanceSlack absorbs float rounding at the ends of [0, 2].
const distanceSlack = 1e-4

// NewSearchResult builds a SearchResult, rejecting empty IDs and distances
// outside [0, 2].
func NewSearchResult(id, content string, metadata map[string]interface{}, distance float32) (SearchResult, error) {
	if id == "" {
		return SearchResult{}, fmt.Errorf("%w: search result id is empty", corpus.ErrInvalidRecord)
	}
	d := float64(distance)
	if math.IsNaN(d) || d < -distanceSlack || d > 2+distanceSlack {
		return SearchResult{}, fmt.Errorf("%w: distance %v outside [0,2]", corpus.ErrInvalidRecord, distance)
	}
	switch {
	case distance < 0:
		distance = 0
	case distance > 2:
		distance = 2
	}
	return SearchResult{ID: id, Content: content, Metadata: metadata, Distance: distance}, nil
}

// distanceFromSimilarity converts a cosine similarity score to a distance.
func distanceFromSimilarity(similarity float32) float32 {
	return 1 - similarity
}

// sortByDistance orders results nearest first, breaking ties by ID.
func sortByDistance(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
}

// MetadataString returns metadata[key] as a string.
func MetadataString(metadata map[string]interface{}, key string) string {
	switch v := metadata[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// MetadataInt returns metadata[key] as an int. Chromem stores every value as
// a string, Qdrant returns int64; both are accepted.
func MetadataInt(metadata map[string]interface{}, key string) (int, bool) {
	switch v := metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
