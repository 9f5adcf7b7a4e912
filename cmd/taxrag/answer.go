package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/app"
	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	httpserver "github.com/fyrsmithlabs/taxrag/internal/http"
	"github.com/fyrsmithlabs/taxrag/internal/logging"
	mcpserver "github.com/fyrsmithlabs/taxrag/internal/mcp"
	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		nResults int
		plain    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question with numbered sources",
		Long: `Answer a question from the indexed documents.

Examples:
  taxrag ask "რა არის დღგ?"
  taxrag ask -n 8 "როგორ უნდა მოვახდინო საბაჟო დეკლარირება?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New(rag.EmptyQuestionMessage)
			}

			svc, err := root.services(cmd, app.Answering)
			if err != nil {
				return err
			}
			defer svc.Close(cmd.Context())

			if nResults == 0 {
				nResults = svc.Config.Server.DefaultResults
			}
			lo, hi := svc.Config.Server.MinResults, svc.Config.Server.MaxResults
			if nResults < lo || nResults > hi {
				return fmt.Errorf("--n-results must be between %d and %d", lo, hi)
			}

			ans, err := svc.RAG.Answer(logging.WithStage(cmd.Context(), "ask"), question, nResults)
			if err != nil {
				return err
			}
			renderAnswer(cmd.OutOrStdout(), ans, plain)
			return nil
		},
	}
	cmd.Flags().IntVarP(&nResults, "n-results", "n", 0, "number of chunks to retrieve (default server.default_results)")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable colors")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question answering HTTP API",
		Long: `Start the HTTP API:

  GET  /health          liveness and active index collection
  POST /api/v1/answer   {"question": "...", "n_results": 5}
  GET  /metrics         Prometheus metrics

The listen port is server.port, or $PORT when set. The server follows index
rebuilds made by ` + "`taxrag index --rebuild`" + ` without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd, app.Answering)
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			ctx := cmd.Context()
			if build {
				buildIfChunksExist(ctx, svc)
			}

			zl := svc.Logger.Underlying()
			srv, err := httpserver.NewServer(svc.RAG, svc.Index, zl.Named("http"), httpserver.FromSettings(svc.Config.Server))
			if err != nil {
				return err
			}

			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			go func() {
				if err := svc.Index.Watch(watchCtx, nil); err != nil {
					svc.Logger.Warn(ctx, "index watcher stopped", zap.Error(err))
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			cmd.Printf("Serving on http://%s\n", srv.Addr())

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.Config.Server.ShutdownTimeout.Duration())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&build, "build", true, "index data/processed/chunks.json at startup when the index is empty")
	return cmd
}

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio (tool: answer_question)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd, app.Answering, app.WithLogOutput(os.Stderr))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			s := svc.Config.Server
			srv, err := mcpserver.NewServer(&mcpserver.Config{
				Name:           "taxrag",
				Version:        version,
				Logger:         svc.Logger.Underlying().Named("mcp"),
				DefaultResults: s.DefaultResults,
				MinResults:     s.MinResults,
				MaxResults:     s.MaxResults,
			}, svc.RAG)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}

// buildIfChunksExist indexes the chunk corpus when the active collection is
// empty. Failures are logged; the server still starts and answers with the
// decline message until an index exists.
func buildIfChunksExist(ctx context.Context, svc *app.Services) {
	chunks, err := corpus.ReadChunks(svc.Config.Data.ProcessedDir())
	if err != nil {
		svc.Logger.Warn(ctx, "skipping startup index build", zap.Error(err))
		return
	}
	start := time.Now()
	stats, err := svc.Index.Build(ctx, chunks)
	if err != nil {
		svc.Logger.Error(ctx, "startup index build failed", zap.Error(err))
		return
	}
	svc.Logger.Info(ctx, "startup index ready",
		zap.String("collection", stats.Collection),
		zap.Int("documents", stats.Documents),
		zap.Bool("skipped", stats.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
}
