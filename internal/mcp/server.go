package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

// Answerer answers one question from the indexed corpus.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*rag.Answer, error)
}

// Server is the taxrag MCP server.
type Server struct {
	mcp      *mcp.Server
	answerer Answerer
	metrics  *Metrics
	logger   *zap.Logger
	config   *Config
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "taxrag")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// DefaultResults is used when n_results is omitted; other values must
	// lie in [MinResults, MaxResults].
	DefaultResults int
	MinResults     int
	MaxResults     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:           "taxrag",
		Version:        "dev",
		Logger:         zap.NewNop(),
		DefaultResults: 5,
		MinResults:     3,
		MaxResults:     10,
	}
}

// NewServer creates a new MCP server backed by answerer.
func NewServer(cfg *Config, answerer Answerer) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating mcp metrics: %w", err)
	}

	s := &Server{
		mcp:      mcpServer,
		answerer: answerer,
		metrics:  metrics,
		logger:   cfg.Logger,
		config:   cfg,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.run(ctx, &mcp.StdioTransport{})
}

func (s *Server) run(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
