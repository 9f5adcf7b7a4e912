package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ManifestFile lists every saved page with its content.
	ManifestFile = "metadata.json"
	// ChunksFile is the flat chunk corpus consumed by the indexer.
	ChunksFile = "chunks.json"

	crawlCommand = "taxrag crawl"
	chunkCommand = "taxrag chunk"
)

var separatorRule = strings.Repeat("=", 80)

// PageFileName returns page_NNN.txt for the n-th saved page (1-based).
func PageFileName(n int) string {
	return fmt.Sprintf("page_%03d.txt", n)
}

// FormatPageFile renders the plain-text page record: URL and Title header
// lines, an 80-column rule, a blank line, then the content.
func FormatPageFile(p Page) string {
	var b strings.Builder
	b.WriteString("URL: " + p.URL + "\n")
	b.WriteString("Title: " + p.Title + "\n")
	b.WriteString(separatorRule + "\n\n")
	b.WriteString(p.Content)
	return b.String()
}

// WritePage writes the n-th saved page (1-based) into dir.
func WritePage(dir string, n int, p Page) (string, error) {
	path := filepath.Join(dir, PageFileName(n))
	if err := WriteFileAtomic(path, []byte(FormatPageFile(p))); err != nil {
		return "", err
	}
	return path, nil
}

// WriteManifest writes metadata.json into dir.
func WriteManifest(dir string, pages []Page) (string, error) {
	if pages == nil {
		pages = []Page{}
	}
	data, err := marshalIndent(pages)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads metadata.json from dir. A missing manifest yields a
// *PrerequisiteError pointing at the crawl command.
func ReadManifest(dir string) ([]Page, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &PrerequisiteError{Path: path, Command: crawlCommand}
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var raw []Page
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	pages := make([]Page, 0, len(raw))
	for _, p := range raw {
		page, err := NewPage(p.URL, p.Title, p.Content)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// WriteChunks writes chunks.json into dir.
func WriteChunks(dir string, chunks []Chunk) (string, error) {
	if chunks == nil {
		chunks = []Chunk{}
	}
	data, err := marshalIndent(chunks)
	if err != nil {
		return "", fmt.Errorf("encode chunks: %w", err)
	}
	path := filepath.Join(dir, ChunksFile)
	if err := WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadChunks loads and validates chunks.json from dir. A missing file yields
// a *PrerequisiteError pointing at the chunk command.
func ReadChunks(dir string) ([]Chunk, error) {
	path := filepath.Join(dir, ChunksFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &PrerequisiteError{Path: path, Command: chunkCommand}
		}
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode chunks %s: %w", path, err)
	}
	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("chunks %s: %w", path, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("chunks %s: %w: duplicate id %d", path, ErrInvalidRecord, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return chunks, nil
}

// marshalIndent encodes with two-space indentation and without escaping
// non-ASCII or HTML characters, so Georgian text stays readable.
func marshalIndent(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it into place, creating the directory if needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// DirWriter persists crawl output into a raw data directory.
type DirWriter struct {
	Dir string
}

// SavePage writes the n-th saved page (1-based).
func (w DirWriter) SavePage(n int, p Page) error {
	_, err := WritePage(w.Dir, n, p)
	return err
}

// SaveManifest writes metadata.json.
func (w DirWriter) SaveManifest(pages []Page) error {
	_, err := WriteManifest(w.Dir, pages)
	return err
}
