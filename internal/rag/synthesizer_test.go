package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	"github.com/fyrsmithlabs/taxrag/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/taxrag/internal/index"
	"github.com/fyrsmithlabs/taxrag/internal/llm"
	"github.com/fyrsmithlabs/taxrag/internal/vectorstore"
)

type fakeRetriever struct {
	hits []index.Hit
	err  error
	k    int
}

func (f *fakeRetriever) Search(_ context.Context, _ string, k int) ([]index.Hit, error) {
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakeGenerator struct {
	answer string
	err    error

	calls  int
	system string
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.calls++
	f.system = system
	f.prompt = prompt
	return f.answer, f.err
}

func vatHits() []index.Hit {
	return []index.Hit{
		{ID: "0", Text: "დღგ-ის განაკვეთი არის 18%.", Source: "https://infohub.rs.ge/ka/vat", Title: "დღგ", Distance: 0.1},
		{ID: "7", Text: "საბაჟო დეკლარაცია.", Source: "https://infohub.rs.ge/ka/customs", Title: "საბაჟო", Distance: 0.4},
	}
}

func TestAnswer_Success(t *testing.T) {
	r := &fakeRetriever{hits: vatHits()}
	g := &fakeGenerator{answer: "დღგ-ის განაკვეთია 18% (წყარო 1)."}
	s := New(r, g)

	ans, err := s.Answer(context.Background(), "რა არის დღგ?", 5)
	require.NoError(t, err)

	assert.Equal(t, 5, r.k)
	assert.Equal(t, "რა არის დღგ?", ans.Query)
	assert.Equal(t, g.answer, ans.Answer)
	assert.False(t, ans.Failed())
	assert.Equal(t, []Source{
		{Number: 1, Title: "დღგ", URL: "https://infohub.rs.ge/ka/vat"},
		{Number: 2, Title: "საბაჟო", URL: "https://infohub.rs.ge/ka/customs"},
	}, ans.Sources)
	assert.Equal(t, vatHits(), ans.Chunks)

	assert.Equal(t, 1, g.calls)
	assert.Equal(t, SystemMessage, g.system)
	assert.Contains(t, g.prompt, "**მომხმარებლის კითხვა:** რა არის დღგ?")
	assert.Contains(t, g.prompt, "ᲛᲮᲝᲚᲝᲓ")
	assert.Contains(t, g.prompt, DeclineMessage)
	assert.True(t, strings.HasSuffix(g.prompt, "**შენი პასუხი:**"))
}

func TestAnswer_SourceNumbersMatchContextLabels(t *testing.T) {
	g := &fakeGenerator{answer: "ok"}
	s := New(&fakeRetriever{hits: vatHits()}, g)

	ans, err := s.Answer(context.Background(), "კითხვა", 5)
	require.NoError(t, err)
	for i, src := range ans.Sources {
		assert.Equal(t, i+1, src.Number)
		label := "--- წყარო " + string(rune('0'+src.Number)) + " ---\nდოკუმენტი: " + src.Title + "\nURL: " + src.URL
		assert.Contains(t, g.prompt, label)
	}
	assert.Less(t, strings.Index(g.prompt, "წყარო 1 ---"), strings.Index(g.prompt, "წყარო 2 ---"))
}

func TestAnswer_EmptyRetrievalDeclines(t *testing.T) {
	g := &fakeGenerator{answer: "should not be used"}
	s := New(&fakeRetriever{}, g)

	before := testutil.ToFloat64(AnswersTotal.WithLabelValues("declined"))
	ans, err := s.Answer(context.Background(), "რა არის დღგ?", 5)
	require.NoError(t, err)

	assert.Equal(t, DeclineMessage, ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, ans.Chunks)
	assert.Zero(t, g.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(AnswersTotal.WithLabelValues("declined")))
}

func TestAnswer_GenerationFailureKeepsSources(t *testing.T) {
	g := &fakeGenerator{err: &llm.GenerationError{Kind: llm.KindQuota, Err: errors.New("rate limit reached")}}
	s := New(&fakeRetriever{hits: vatHits()}, g)

	before := testutil.ToFloat64(AnswersTotal.WithLabelValues("failed"))
	ans, err := s.Answer(context.Background(), "რა არის დღგ?", 5)
	require.NoError(t, err)

	assert.True(t, ans.Failed())
	assert.Equal(t, llm.KindQuota, ans.ErrorKind)
	assert.Equal(t, FailurePrefix+"rate limit reached", ans.Answer)
	assert.Len(t, ans.Sources, 2)
	assert.Len(t, ans.Chunks, 2)
	assert.Equal(t, before+1, testutil.ToFloat64(AnswersTotal.WithLabelValues("failed")))
}

func TestAnswer_UntaggedGenerationError(t *testing.T) {
	g := &fakeGenerator{err: errors.New("dial tcp: connection refused")}
	s := New(&fakeRetriever{hits: vatHits()}, g)

	ans, err := s.Answer(context.Background(), "კითხვა", 3)
	require.NoError(t, err)
	assert.Equal(t, llm.KindNetwork, ans.ErrorKind)
}

func TestAnswer_Errors(t *testing.T) {
	s := New(&fakeRetriever{err: vectorstore.ErrConnectionFailed}, &fakeGenerator{})

	_, err := s.Answer(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = s.Answer(context.Background(), "კითხვა", 5)
	assert.ErrorIs(t, err, vectorstore.ErrConnectionFailed)

	bad := New(&fakeRetriever{hits: []index.Hit{{ID: "1", Text: "x"}}}, &fakeGenerator{answer: "ok"})
	_, err = bad.Answer(context.Background(), "კითხვა", 5)
	assert.ErrorIs(t, err, corpus.ErrInvalidRecord)
}

func TestNewSource(t *testing.T) {
	s, err := NewSource(1, "დღგ", "https://infohub.rs.ge/ka/vat")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Number)

	_, err = NewSource(0, "t", "https://x")
	assert.ErrorIs(t, err, corpus.ErrInvalidRecord)
	_, err = NewSource(1, "t", " ")
	assert.ErrorIs(t, err, corpus.ErrInvalidRecord)
}

func TestContextBlock(t *testing.T) {
	got := ContextBlock(vatHits()[:1])
	assert.Equal(t, "\n--- წყარო 1 ---\nდოკუმენტი: დღგ\nURL: https://infohub.rs.ge/ka/vat\nშინაარსი: დღგ-ის განაკვეთი არის 18%.\n", got)
	assert.Empty(t, ContextBlock(nil))
}

func TestAnswer_VATQueryRetrievesVATChunk(t *testing.T) {
	provider := embeddingstest.NewHashProvider(64)
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       filepath.Join(t.TempDir(), "db"),
		VectorSize: 64,
	}, provider, nil)
	require.NoError(t, err)
	ix, err := index.New(store, index.Config{Dir: t.TempDir(), Base: "tax_documents", Dimension: 64})
	require.NoError(t, err)

	_, err = ix.Build(context.Background(), []corpus.Chunk{
		{ID: 0, Text: "საბაჟო დეკლარაცია წარედგინება ელექტრონულად", Source: "https://infohub.rs.ge/ka/customs", Title: "საბაჟო", TotalChunks: 1},
		{ID: 1, Text: "დღგ არის დამატებული ღირებულების გადასახადი, განაკვეთი 18 პროცენტი", Source: "https://infohub.rs.ge/ka/vat", Title: "დღგ", TotalChunks: 1},
		{ID: 2, Text: "ქონების გადასახადი გადაიხდება წლიურად", Source: "https://infohub.rs.ge/ka/property", Title: "ქონება", TotalChunks: 1},
	})
	require.NoError(t, err)

	g := &fakeGenerator{answer: "დღგ არის დამატებული ღირებულების გადასახადი (წყარო 1)."}
	ans, err := New(ix, g).Answer(context.Background(), "რა არის დღგ?", 3)
	require.NoError(t, err)

	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "https://infohub.rs.ge/ka/vat", ans.Sources[0].URL)
	assert.Contains(t, g.prompt, "--- წყარო 1 ---\nდოკუმენტი: დღგ\n")
}
