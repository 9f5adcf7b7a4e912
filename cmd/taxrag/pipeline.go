package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/app"
	"github.com/fyrsmithlabs/taxrag/internal/chunker"
	"github.com/fyrsmithlabs/taxrag/internal/corpus"
	"github.com/fyrsmithlabs/taxrag/internal/crawler"
	"github.com/fyrsmithlabs/taxrag/internal/logging"
)

func newCrawlCmd(root *rootOptions) *cobra.Command {
	var (
		baseURL  string
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch pages from the information hub into data/raw",
		Long: `Crawl the configured site breadth-first, following links under the base URL,
and save each page with text as page_NNN.txt plus a metadata.json manifest.

Examples:
  # Crawl with configured defaults (https://infohub.rs.ge/ka, 50 pages)
  taxrag crawl

  # Crawl a different section with a smaller cap
  taxrag crawl --url https://infohub.rs.ge/ka/customs --max-pages 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd, app.Base)
			if err != nil {
				return err
			}
			defer svc.Close(cmd.Context())

			cfg := svc.Config
			if baseURL == "" {
				baseURL = cfg.Crawler.BaseURL
			}
			if maxPages <= 0 {
				maxPages = cfg.Crawler.MaxPages
			}

			rawDir := cfg.Data.RawDir()
			if err := os.MkdirAll(rawDir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", rawDir, err)
			}

			ctx := logging.WithStage(cmd.Context(), "crawl")
			c, err := crawler.New(crawler.Config{
				BaseURL:   baseURL,
				UserAgent: cfg.Crawler.UserAgent,
				Timeout:   cfg.Crawler.Timeout.Duration(),
				Delay:     cfg.Crawler.Delay.Duration(),
			},
				crawler.WithSink(corpus.DirWriter{Dir: rawDir}),
				crawler.WithLogger(svc.Logger.Underlying().Named("crawler")),
			)
			if err != nil {
				return err
			}

			res, err := c.Crawl(ctx, baseURL, maxPages)
			if err != nil {
				return err
			}
			svc.Logger.Info(ctx, "crawl finished",
				zap.Int("saved", len(res.Pages)),
				zap.Int("visited", res.Visited),
				zap.Int("failed", res.Failed),
			)
			printCrawlStats(cmd.OutOrStdout(), res, rawDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "base URL to crawl (default crawler.base_url)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to visit (default crawler.max_pages)")
	return cmd
}

func newChunkCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk",
		Short: "Split crawled pages into overlapping chunks (data/processed/chunks.json)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd, app.Base)
			if err != nil {
				return err
			}
			defer svc.Close(cmd.Context())

			cfg := svc.Config
			ctx := logging.WithStage(cmd.Context(), "chunk")

			pages, err := corpus.ReadManifest(cfg.Data.RawDir())
			if err != nil {
				if reportPrerequisite(cmd, svc, err) {
					return nil
				}
				return err
			}

			p := chunker.New(
				chunker.WithChunkSize(cfg.Chunker.Size),
				chunker.WithOverlap(cfg.Chunker.Overlap),
				chunker.WithLogger(svc.Logger.Underlying().Named("chunker")),
			)
			chunks, err := p.Process(ctx, pages)
			if err != nil {
				return err
			}

			processed := cfg.Data.ProcessedDir()
			if err := os.MkdirAll(processed, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", processed, err)
			}
			path, err := corpus.WriteChunks(processed, chunks)
			if err != nil {
				return err
			}

			stats := chunker.ComputeStats(chunks)
			svc.Logger.Info(ctx, "chunking finished",
				zap.Int("pages", len(pages)),
				zap.Int("chunks", stats.TotalChunks),
				zap.String("path", path),
			)
			printChunkStats(cmd.OutOrStdout(), len(pages), stats, path)
			return nil
		},
	}
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed chunks into the vector store",
		Long: `Embed data/processed/chunks.json and store it in the configured vector store.

An already populated index is left untouched unless --rebuild is given. A
rebuild writes a fresh collection and switches a running server over to it
atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd, app.Retrieval)
			if err != nil {
				return err
			}
			defer svc.Close(cmd.Context())

			ctx := logging.WithStage(cmd.Context(), "index")
			chunks, err := corpus.ReadChunks(svc.Config.Data.ProcessedDir())
			if err != nil {
				if reportPrerequisite(cmd, svc, err) {
					return nil
				}
				return err
			}

			build := svc.Index.Build
			if rebuild {
				build = svc.Index.Rebuild
			}
			stats, err := build(ctx, chunks)
			if err != nil {
				return err
			}
			printIndexStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild even if the index is populated")
	return cmd
}

// reportPrerequisite logs a missing earlier-stage artifact and tells the
// user which command produces it. It reports whether err was handled.
func reportPrerequisite(cmd *cobra.Command, svc *app.Services, err error) bool {
	var pe *corpus.PrerequisiteError
	if !errors.As(err, &pe) {
		return false
	}
	svc.Logger.Warn(cmd.Context(), "missing prerequisite",
		zap.String("path", pe.Path),
		zap.String("command", pe.Command),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "⚠️  %s not found. Run `%s` first.\n", pe.Path, pe.Command)
	return true
}
