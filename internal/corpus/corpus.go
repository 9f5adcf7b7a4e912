// Package corpus defines the records passed between pipeline stages and
// their on-disk artifacts: per-page text files, the crawl manifest and the
// chunk corpus.
package corpus

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidRecord is returned by the record constructors.
var ErrInvalidRecord = errors.New("invalid record")

// Page is one crawled document. Pages are immutable once written and are
// identified by their position in the crawl.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewPage validates and builds a Page. An empty title falls back to the URL.
func NewPage(rawURL, title, content string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, fmt.Errorf("%w: page url %q is not an absolute http(s) url", ErrInvalidRecord, rawURL)
	}
	if strings.TrimSpace(content) == "" {
		return Page{}, fmt.Errorf("%w: page %s has no content", ErrInvalidRecord, rawURL)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = rawURL
	}
	return Page{URL: rawURL, Title: title, Content: content}, nil
}

// Chunk is a segment of one Page. IDs are unique and assigned in corpus
// order; ChunkIndex runs from 0 to TotalChunks-1 within a page.
type Chunk struct {
	ID          int    `json:"id"`
	Text        string `json:"text"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// NewChunk validates and builds a Chunk.
func NewChunk(id int, text, source, title string, index, total int) (Chunk, error) {
	c := Chunk{ID: id, Text: text, Source: source, Title: title, ChunkIndex: index, TotalChunks: total}
	if err := c.Validate(); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

// Validate checks the invariants NewChunk enforces. It is also applied to
// chunks decoded from chunks.json.
func (c Chunk) Validate() error {
	switch {
	case c.ID < 0:
		return fmt.Errorf("%w: chunk id %d is negative", ErrInvalidRecord, c.ID)
	case strings.TrimSpace(c.Text) == "":
		return fmt.Errorf("%w: chunk %d has empty text", ErrInvalidRecord, c.ID)
	case c.Source == "":
		return fmt.Errorf("%w: chunk %d has no source", ErrInvalidRecord, c.ID)
	case c.TotalChunks < 1:
		return fmt.Errorf("%w: chunk %d total_chunks %d < 1", ErrInvalidRecord, c.ID, c.TotalChunks)
	case c.ChunkIndex < 0 || c.ChunkIndex >= c.TotalChunks:
		return fmt.Errorf("%w: chunk %d index %d outside [0,%d)", ErrInvalidRecord, c.ID, c.ChunkIndex, c.TotalChunks)
	}
	return nil
}

// ErrMissingPrerequisite is returned when an earlier stage's output is absent.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// PrerequisiteError names the missing artifact and the command that produces it.
type PrerequisiteError struct {
	Path    string
	Command string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s not found; run `%s` first", e.Path, e.Command)
}

// Unwrap lets callers match with errors.Is(err, ErrMissingPrerequisite).
func (e *PrerequisiteError) Unwrap() error {
	return ErrMissingPrerequisite
}
