// Package rag answers questions from the indexed corpus: it retrieves the
// nearest chunks, assembles a numbered context block and asks the language
// model for a cited answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	"github.com/fyrsmithlabs/taxrag/internal/index"
	"github.com/fyrsmithlabs/taxrag/internal/llm"
)

// ErrEmptyQuestion is returned for a blank query.
var ErrEmptyQuestion = errors.New("question is empty")

var tracer = otel.Tracer("taxrag.rag")

// Retriever returns up to k chunks nearest to query, closest first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Source is one numbered citation.
type Source struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// NewSource validates and returns a Source. Numbers start at 1.
func NewSource(number int, title, url string) (Source, error) {
	if number < 1 {
		return Source{}, fmt.Errorf("%w: source number %d", corpus.ErrInvalidRecord, number)
	}
	if strings.TrimSpace(url) == "" {
		return Source{}, fmt.Errorf("%w: source %d has no url", corpus.ErrInvalidRecord, number)
	}
	return Source{Number: number, Title: title, URL: url}, nil
}

// Answer is the result of one question.
type Answer struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer"`
	Sources []Source    `json:"sources"`
	Chunks  []index.Hit `json:"relevant_chunks"`
	// ErrorKind is set when generation failed and Answer holds the failure text.
	ErrorKind llm.ErrorKind `json:"error_kind,omitempty"`
}

// Failed reports whether generation failed.
func (a *Answer) Failed() bool {
	return a.ErrorKind != ""
}

// Synthesizer implements the question answering flow.
type Synthesizer struct {
	retriever Retriever
	generator llm.Generator
	logger    *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Synthesizer.
func New(retriever Retriever, generator llm.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{retriever: retriever, generator: generator, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer retrieves k chunks for query and generates a cited answer.
//
// Retrieval errors are returned. With nothing retrieved the model is not
// called and the answer is DeclineMessage. A generation failure is reported
// in-band: the answer starts with FailurePrefix, the sources are kept and
// ErrorKind is set.
func (s *Synthesizer) Answer(ctx context.Context, query string, k int) (ans *Answer, err error) {
	ctx, span := tracer.Start(ctx, "rag.Answer")
	defer span.End()

	start := time.Now()
	defer func() { observeAnswer(ans, err, start) }()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}
	span.SetAttributes(attribute.Int("k", k))

	hits, err := s.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	retrievedChunks.Observe(float64(len(hits)))
	s.logger.Debug("retrieved context", zap.Int("chunks", len(hits)), zap.Int("k", k))

	if len(hits) == 0 {
		return &Answer{
			Query:   query,
			Answer:  DeclineMessage,
			Sources: []Source{},
			Chunks:  []index.Hit{},
		}, nil
	}

	prompt, sources, err := BuildPrompt(query, hits)
	if err != nil {
		return nil, err
	}
	ans = &Answer{Query: query, Sources: sources, Chunks: hits}

	text, err := s.generator.Generate(ctx, SystemMessage, prompt)
	if err != nil {
		kind := llm.KindOf(err)
		if kind == "" {
			kind = llm.Classify(err)
		}
		s.logger.Warn("answer generation failed",
			zap.String("kind", string(kind)),
			zap.Int("sources", len(sources)),
			zap.Error(err),
		)
		span.SetAttributes(attribute.String("error_kind", string(kind)))
		ans.Answer = FailurePrefix + err.Error()
		ans.ErrorKind = kind
		return ans, nil
	}

	ans.Answer = text
	s.logger.Info("answered question",
		zap.Int("sources", len(sources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ans, nil
}
