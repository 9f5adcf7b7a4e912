package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/config"
	"github.com/fyrsmithlabs/taxrag/internal/embeddings"
	"github.com/fyrsmithlabs/taxrag/internal/index"
	"github.com/fyrsmithlabs/taxrag/internal/llm"
	"github.com/fyrsmithlabs/taxrag/internal/logging"
	"github.com/fyrsmithlabs/taxrag/internal/rag"
	"github.com/fyrsmithlabs/taxrag/internal/telemetry"
	"github.com/fyrsmithlabs/taxrag/internal/vectorstore"
)

// Level selects how much of the stack New brings up.
type Level int

const (
	// Base starts logging and telemetry only (crawl, chunk).
	Base Level = iota
	// Retrieval adds the embedder, vector store and index (index).
	Retrieval
	// Answering adds the model client and synthesizer (ask, serve, mcp).
	Answering
)

// Services holds the shared components of one process.
type Services struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry

	Embedder embeddings.Provider
	Store    vectorstore.Store
	Index    *index.Indexer

	Generator llm.Generator
	RAG       *rag.Synthesizer

	ownsEmbedder bool
}

// Option configures New.
type Option func(*options)

type options struct {
	version   string
	logOutput io.Writer
	embedder  embeddings.Provider
	generator llm.Generator
}

// WithVersion sets the service version reported to telemetry.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLogOutput sends logs to w instead of stdout. The mcp command uses
// stderr because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithEmbedder injects an embedding provider instead of building one from
// configuration. The caller keeps ownership.
func WithEmbedder(p embeddings.Provider) Option {
	return func(o *options) { o.embedder = p }
}

// WithGenerator injects a generator instead of the configured model client.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// New brings up the stack in dependency order: logger, telemetry, embedder,
// vector store, index, model client, synthesizer. On error everything
// already started is closed.
func New(ctx context.Context, cfg *config.Config, level Level, opts ...Option) (svc *Services, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	o := &options{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	s := &Services{Config: cfg}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, o.version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	s.Telemetry = tel

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger, err := logging.NewLoggerTo(logCfg, o.logOutput, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	s.Logger = logger
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(derr))
	}

	if level >= Retrieval {
		if err := s.initRetrieval(ctx, o); err != nil {
			return nil, err
		}
	}
	if level >= Answering {
		if err := s.initAnswering(ctx, o); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Services) initRetrieval(ctx context.Context, o *options) error {
	cfg := s.Config
	zl := s.Logger.Underlying()

	if o.embedder != nil {
		s.Embedder = o.embedder
	} else {
		if cfg.Embeddings.Provider == "fastembed" {
			installer := &embeddings.ONNXInstaller{Version: cfg.Embeddings.ONNXVersion}
			path, err := installer.Ensure(ctx)
			if err != nil {
				return fmt.Errorf("preparing onnx runtime: %w", err)
			}
			s.Logger.Debug(ctx, "onnx runtime", zap.String("path", path))
		}
		p, err := embeddings.NewProvider(embeddings.FromSettings(cfg.Embeddings))
		if err != nil {
			return fmt.Errorf("initializing embeddings: %w", err)
		}
		s.Embedder = p
		s.ownsEmbedder = true
	}
	s.Logger.Info(ctx, "embedding provider ready",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", s.Embedder.Dimension()),
	)

	store, err := vectorstore.NewStore(cfg, s.Embedder, zl.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	s.Store = store

	ix, err := index.New(store, index.Config{
		Dir:       cfg.Data.Dir,
		Base:      cfg.Index.Collection,
		BatchSize: cfg.Index.BatchSize,
		Dimension: s.Embedder.Dimension(),
	}, index.WithLogger(zl.Named("index")))
	if err != nil {
		return fmt.Errorf("initializing index: %w", err)
	}
	s.Index = ix
	return nil
}

func (s *Services) initAnswering(ctx context.Context, o *options) error {
	cfg := s.Config
	zl := s.Logger.Underlying()

	if o.generator != nil {
		s.Generator = o.generator
	} else {
		key, err := cfg.LLMSecretResolver().Resolve(cfg.LLM.APIKeyEnv)
		if err != nil {
			return fmt.Errorf("resolving llm api key: %w", err)
		}
		client, err := llm.New(llm.FromSettings(cfg.LLM, key), llm.WithLogger(zl.Named("llm")))
		if err != nil {
			return fmt.Errorf("initializing llm client: %w", err)
		}
		s.Generator = client
		s.Logger.Info(ctx, "llm client ready",
			zap.String("base_url", cfg.LLM.BaseURL),
			zap.String("model", cfg.LLM.Model),
			logging.Secret("api_key", key),
		)
	}

	s.RAG = rag.New(s.Index, s.Generator, rag.WithLogger(zl.Named("rag")))
	return nil
}

// Close releases everything New started, in reverse order.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector store: %w", err))
		}
	}
	if s.Embedder != nil && s.ownsEmbedder {
		if err := s.Embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if s.Telemetry != nil {
		if err := s.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}
