// Package http serves the question answering API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/config"
	"github.com/fyrsmithlabs/taxrag/internal/logging"
	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

// Answerer answers one question from the indexed corpus.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*rag.Answer, error)
}

// Server provides HTTP endpoints for taxrag.
type Server struct {
	echo     *echo.Echo
	answerer Answerer
	index    IndexStatus
	logger   *zap.Logger
	config   *Config
	metrics  *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultResults is used when a request omits n_results; requests
	// outside [MinResults, MaxResults] are rejected.
	DefaultResults int
	MinResults     int
	MaxResults     int
}

// FromSettings maps the server section of the loaded configuration.
func FromSettings(s config.ServerConfig) *Config {
	return &Config{
		Host:           s.Host,
		Port:           s.Port,
		DefaultResults: s.DefaultResults,
		MinResults:     s.MinResults,
		MaxResults:     s.MaxResults,
	}
}

func defaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           10000,
		DefaultResults: 5,
		MinResults:     3,
		MaxResults:     10,
	}
}

// NewServer creates a new HTTP server. index may be nil, in which case
// /health omits index details.
func NewServer(answerer Answerer, index IndexStatus, logger *zap.Logger, cfg *Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = defaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics, err := NewHTTPMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating http metrics: %w", err)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		answerer: answerer,
		index:    index,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/answer", s.handleAnswer)
}

// handleHealth reports liveness and the active index collection.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.index != nil {
		resp.Collection = s.index.Active()
		docs := CountDocuments(c.Request().Context(), s.index)
		resp.Documents = &docs
	}
	return c.JSON(http.StatusOK, resp)
}

// handleAnswer answers one question.
func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid answer request", zap.Error(err))
		s.metrics.RecordRejected(c.Request().Context(), rejectBadBody)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Question) == "" {
		s.metrics.RecordRejected(c.Request().Context(), rejectEmptyQuestion)
		return echo.NewHTTPError(http.StatusBadRequest, rag.EmptyQuestionMessage)
	}

	k := s.config.DefaultResults
	if req.NResults != nil && *req.NResults != 0 {
		k = *req.NResults
	}
	if k < s.config.MinResults || k > s.config.MaxResults {
		s.metrics.RecordRejected(c.Request().Context(), rejectResultsRange)
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("n_results must be between %d and %d", s.config.MinResults, s.config.MaxResults))
	}

	ctx := c.Request().Context()
	ans, err := s.answerer.Answer(ctx, req.Question, k)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, rag.EmptyQuestionMessage)
		}
		s.logger.Error("answer failed",
			zap.String("request_id", logging.RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer question")
	}

	return c.JSON(http.StatusOK, AnswerResponse{
		Answer:    ans.Answer,
		Sources:   ans.Sources,
		ErrorKind: string(ans.ErrorKind),
	})
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
