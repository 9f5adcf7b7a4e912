package chunker

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses newlines", "a\n\n\n\nb", "a\n\nb"},
		{"keeps double newline", "a\n\nb", "a\n\nb"},
		{"collapses spaces", "a    b  c", "a b c"},
		{"trims", "  \n a b \n\n\n", "a b"},
		{"georgian", "დღგ   არის\n\n\n\n18%", "დღგ არის\n\n18%"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("ab დღგ \n\n\n.  \t")
	for i := 0; i < 500; i++ {
		s := randomText(rng, alphabet, rng.Intn(200))
		once := Clean(s)
		assert.Equal(t, once, Clean(once), "input %q", s)
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	text := "  დღგ არის 18%.  "
	assert.Equal(t, []string{"დღგ არის 18%."}, Split(text, 800, 200))
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Empty(t, Split("", 800, 200))
	assert.Empty(t, Split("   \n  ", 800, 200))
}

func TestSplit_PrefersSentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second one follows. Third!"
	got := Split(text, 25, 5)
	assert.Equal(t, []string{
		"First sentence here.",
		"ere. Second one follows.",
		"ows. Third!",
	}, got)
}

func TestSplit_HardCutWithoutSeparators(t *testing.T) {
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, Split("abcdefghij", 4, 1))
}

func TestSplit_OverlapNotSmallerThanSize(t *testing.T) {
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Split("abcdefghij", 4, 4))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Split("abcdefghij", 4, 100))
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ა", 10)
	chunks := Split(text, 4, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, "აააა", chunks[0])
	assert.Equal(t, "აა", chunks[2])
}

func TestSplit_SeparatorAtWindowStartIsIgnored(t *testing.T) {
	// ". " at offset 0 of the window does not count as a boundary
	got := Split(". abcdefgh", 5, 0)
	assert.Equal(t, []string{". abc", "defgh"}, got)
}

func TestSpans_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcდღგ .!?\n")

	for i := 0; i < 300; i++ {
		text := randomText(rng, alphabet, rng.Intn(400))
		size := 1 + rng.Intn(60)
		overlap := rng.Intn(80)
		n := len([]rune(text))

		spans := Spans(text, size, overlap)
		if n == 0 {
			assert.Empty(t, spans)
			continue
		}

		require.NotEmpty(t, spans)
		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, n, spans[len(spans)-1].End)

		for j, s := range spans {
			assert.Less(t, s.Start, s.End)
			assert.LessOrEqual(t, s.End-s.Start, size)
			if j == 0 {
				continue
			}
			prev := spans[j-1]
			assert.Greater(t, s.Start, prev.Start, "windows must advance")
			assert.LessOrEqual(t, s.Start, prev.End, "no text between windows is dropped")
			assert.GreaterOrEqual(t, s.Start, prev.End-overlap, "repeated text is bounded by overlap")
		}
	}
}

func TestSplit_ReconstructsModuloOverlap(t *testing.T) {
	text := strings.Repeat("საგადასახადო კოდექსი. ", 40) + "ბოლო"
	runes := []rune(text)
	spans := Spans(text, 120, 30)

	var rebuilt []rune
	for i, s := range spans {
		from := s.Start
		if i > 0 {
			from = spans[i-1].End
		}
		rebuilt = append(rebuilt, runes[from:s.End]...)
	}
	assert.Equal(t, text, string(rebuilt))
}

func TestProcessor_Process(t *testing.T) {
	pages := []corpus.Page{
		{URL: "https://infohub.rs.ge/ka/a", Title: "A", Content: strings.Repeat("წინადადება. ", 30)},
		{URL: "https://infohub.rs.ge/ka/b", Title: "B", Content: "მოკლე   ტექსტი\n\n\n\nმეორე"},
	}

	p := New(WithChunkSize(100), WithOverlap(20))
	chunks, err := p.Process(context.Background(), pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	perSource := map[string][]corpus.Chunk{}
	for i, c := range chunks {
		assert.Equal(t, i, c.ID, "ids are sequential across the corpus")
		perSource[c.Source] = append(perSource[c.Source], c)
	}

	for src, cs := range perSource {
		for j, c := range cs {
			assert.Equal(t, j, c.ChunkIndex, src)
			assert.Equal(t, len(cs), c.TotalChunks, src)
		}
	}

	last := perSource["https://infohub.rs.ge/ka/b"]
	require.Len(t, last, 1)
	assert.Equal(t, "მოკლე ტექსტი\n\nმეორე", last[0].Text)
	assert.Equal(t, "B", last[0].Title)
}

func TestProcessor_Defaults(t *testing.T) {
	p := New(WithChunkSize(0), WithOverlap(-3))
	assert.Equal(t, DefaultChunkSize, p.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, p.overlap)
}

func TestProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Process(ctx, []corpus.Page{{URL: "https://x", Title: "x", Content: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]corpus.Chunk{{Text: "აბგ"}, {Text: "abcd"}})
	assert.Equal(t, Stats{TotalChunks: 2, TotalChars: 7, AverageChars: 4}, stats)
	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func randomText(rng *rand.Rand, alphabet []rune, n int) string {
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(out)
}
