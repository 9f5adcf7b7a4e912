package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPage(t *testing.T) {
	p, err := NewPage("https://infohub.rs.ge/ka/vat", " დღგ ", "დღგ არის 18%.")
	require.NoError(t, err)
	assert.Equal(t, "დღგ", p.Title)

	p, err = NewPage("https://infohub.rs.ge/ka/vat", "", "body")
	require.NoError(t, err)
	assert.Equal(t, "https://infohub.rs.ge/ka/vat", p.Title)

	_, err = NewPage("/relative", "t", "body")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = NewPage("https://infohub.rs.ge/ka/vat", "t", "  \n ")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestNewChunk(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		text    string
		source  string
		index   int
		total   int
		wantErr bool
	}{
		{"valid", 0, "text", "https://x", 0, 1, false},
		{"last index", 7, "text", "https://x", 2, 3, false},
		{"negative id", -1, "text", "https://x", 0, 1, true},
		{"blank text", 1, "   ", "https://x", 0, 1, true},
		{"no source", 1, "text", "", 0, 1, true},
		{"zero total", 1, "text", "https://x", 0, 0, true},
		{"index past total", 1, "text", "https://x", 3, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunk(tt.id, tt.text, tt.source, "title", tt.index, tt.total)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatPageFile(t *testing.T) {
	p := Page{URL: "https://infohub.rs.ge/ka/a", Title: "A", Content: "line1\nline2"}
	got := FormatPageFile(p)

	lines := strings.Split(got, "\n")
	assert.Equal(t, "URL: https://infohub.rs.ge/ka/a", lines[0])
	assert.Equal(t, "Title: A", lines[1])
	assert.Equal(t, strings.Repeat("=", 80), lines[2])
	assert.Equal(t, "", lines[3])
	assert.True(t, strings.HasSuffix(got, "line1\nline2"))
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pages := []Page{
		{URL: "https://infohub.rs.ge/ka/1", Title: "საბაჟო", Content: "საბაჟო დეკლარაცია"},
		{URL: "https://infohub.rs.ge/ka/2", Title: "დღგ", Content: "დღგ <18%> & more"},
	}

	for i, p := range pages {
		path, err := WritePage(dir, i+1, p)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, PageFileName(i+1)), path)
	}
	_, err := WriteManifest(dir, pages)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "საბაჟო")
	assert.Contains(t, string(raw), "<18%> & more")
	assert.Contains(t, string(raw), "\n  {")

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, pages, got)

	assert.FileExists(t, filepath.Join(dir, "page_001.txt"))
	assert.FileExists(t, filepath.Join(dir, "page_002.txt"))
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingPrerequisite))

	var pe *PrerequisiteError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "taxrag crawl", pe.Command)
	assert.Contains(t, err.Error(), "run `taxrag crawl` first")
}

func TestChunksRoundTrip(t *testing.T) {
	dir := t.TempDir()
	chunks := []Chunk{
		{ID: 0, Text: "a", Source: "https://x/1", Title: "X", ChunkIndex: 0, TotalChunks: 2},
		{ID: 1, Text: "b", Source: "https://x/1", Title: "X", ChunkIndex: 1, TotalChunks: 2},
	}
	_, err := WriteChunks(dir, chunks)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ChunksFile))
	require.NoError(t, err)
	for _, key := range []string{`"id"`, `"text"`, `"source"`, `"title"`, `"chunk_index"`, `"total_chunks"`} {
		assert.Contains(t, string(raw), key)
	}

	got, err := ReadChunks(dir)
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

func TestReadChunks_Errors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := ReadChunks(t.TempDir())
		var pe *PrerequisiteError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "taxrag chunk", pe.Command)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		dir := t.TempDir()
		c := Chunk{ID: 3, Text: "a", Source: "https://x", ChunkIndex: 0, TotalChunks: 1}
		_, err := WriteChunks(dir, []Chunk{c, c})
		require.NoError(t, err)
		_, err = ReadChunks(dir)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("invalid record", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ChunksFile),
			[]byte(`[{"id":0,"text":"","source":"https://x","chunk_index":0,"total_chunks":1}]`), 0o644))
		_, err := ReadChunks(dir)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, WriteFileAtomic(filepath.Join(dir, "state.json"), []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestWriteFileAtomic_WorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), ChunksFile)
	require.NoError(t, WriteFileAtomic(path, []byte("[]")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
