// Package chunker splits page text into overlapping, boundary-aligned chunks.
//
// Sizes and offsets are counted in runes so Georgian text is measured the
// same way as ASCII.
package chunker

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
)

const (
	// DefaultChunkSize is the default number of runes per chunk window.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the default number of runes repeated between chunks.
	DefaultChunkOverlap = 200
)

// separators are tried in order; the first one found inside the window wins.
var separators = [][]rune{
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n\n"),
	[]rune("\n"),
}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(` {2,}`)
)

// Clean collapses 3+ newlines to two, runs of spaces to one, and trims.
// Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Span is a half-open rune range [Start, End) of the split text.
type Span struct {
	Start, End int
}

// Spans returns the windows Split cuts, before trimming. Each span starts
// strictly after the previous one, starts no later than the previous end,
// and the last span ends at len([]rune(text)).
func Spans(text string, size, overlap int) []Span {
	runes := []rune(text)
	n := len(runes)
	if size < 1 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var spans []Span
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			spans = append(spans, Span{Start: start, End: n})
			break
		}

		cut := end
		for _, sep := range separators {
			if pos := lastIndex(runes[start:end], sep); pos > 0 {
				cut = start + pos + len(sep)
				break
			}
		}
		spans = append(spans, Span{Start: start, End: cut})

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return spans
}

// Split cuts text into chunks of at most size runes, preferring sentence and
// paragraph boundaries, with consecutive chunks sharing up to overlap runes.
// Whitespace-only chunks are dropped.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	var chunks []string
	for _, s := range Spans(text, size, overlap) {
		if c := strings.TrimSpace(string(runes[s.Start:s.End])); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// lastIndex returns the rune offset of the last occurrence of sep in s, or -1.
func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Processor turns crawled pages into the chunk corpus.
type Processor struct {
	chunkSize int
	overlap   int
	logger    *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithChunkSize sets the window size in runes. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap in runes. Negative values are ignored.
// Overlap may exceed the chunk size; splitting still terminates.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Processor with defaults of 800/200.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process cleans and splits every page. Chunk ids run from 0 across the
// whole corpus in page order; chunk_index restarts at 0 for each page.
func (p *Processor) Process(ctx context.Context, pages []corpus.Page) ([]corpus.Chunk, error) {
	var out []corpus.Chunk
	nextID := 0

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		texts := Split(Clean(page.Content), p.chunkSize, p.overlap)
		for j, text := range texts {
			c, err := corpus.NewChunk(nextID, text, page.URL, page.Title, j, len(texts))
			if err != nil {
				return nil, err
			}
			out = append(out, c)
			nextID++
		}

		p.logger.Debug("page chunked",
			zap.Int("page", i+1),
			zap.Int("of", len(pages)),
			zap.String("title", page.Title),
			zap.Int("chunks", len(texts)),
		)
	}
	return out, nil
}

// Stats summarises a chunk corpus.
type Stats struct {
	TotalChunks  int
	TotalChars   int
	AverageChars int
}

// ComputeStats counts runes across chunks.
func ComputeStats(chunks []corpus.Chunk) Stats {
	s := Stats{TotalChunks: len(chunks)}
	for _, c := range chunks {
		s.TotalChars += len([]rune(c.Text))
	}
	if s.TotalChunks > 0 {
		s.AverageChars = (s.TotalChars + s.TotalChunks/2) / s.TotalChunks
	}
	return s
}
