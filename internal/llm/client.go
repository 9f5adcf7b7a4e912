// Package llm calls an OpenAI-compatible chat completion API (Groq by
// default) and tags failures with an ErrorKind.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/config"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("llm api key is required")

var tracer = otel.Tracer("taxrag.llm")

// Generator produces a completion for a system and user message pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// FromSettings maps the loaded llm section plus a resolved key to a Config.
func FromSettings(s config.LLMConfig, apiKey config.Secret) Config {
	return Config{
		BaseURL:     s.BaseURL,
		Model:       s.Model,
		APIKey:      apiKey.Value(),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Timeout:     s.Timeout.Duration(),
	}
}

// Client implements Generator over langchaingo's openai backend.
type Client struct {
	llm    *openai.LLM
	cfg    Config
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", config.ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	o := &options{logger: zap.NewNop(), httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	openaiOpts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(o.httpClient),
	}
	if cfg.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	llm, err := openai.New(openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return &Client{llm: llm, cfg: cfg, logger: o.logger}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate sends system and prompt as one chat exchange and returns the
// assistant text. The call is bounded by Config.Timeout. Any failure is a
// *GenerationError.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.Int("prompt_chars", len(prompt)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithModel(c.cfg.Model),
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithMaxTokens(c.cfg.MaxTokens),
	)
	if err == nil && (resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "") {
		err = ErrEmptyCompletion
	}
	if err != nil {
		ge := &GenerationError{Kind: Classify(err), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ge.Kind))
		c.logger.Warn("generation failed",
			zap.String("model", c.cfg.Model),
			zap.String("kind", string(ge.Kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", ge
	}

	text := resp.Choices[0].Content
	c.logger.Debug("generation complete",
		zap.String("model", c.cfg.Model),
		zap.Int("answer_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
