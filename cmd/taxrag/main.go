// Package main implements the taxrag CLI: the offline corpus pipeline
// (crawl, chunk, index) and the question answering surfaces (ask, serve,
// mcp).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taxrag/internal/app"
	"github.com/fyrsmithlabs/taxrag/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "taxrag",
		Short: "Answer Georgian tax and customs questions from rs.ge documents",
		Long: `taxrag scrapes the Georgian Revenue Service information hub, splits the pages
into overlapping chunks, indexes them with a multilingual embedding model and
answers questions with cited sources through an LLM.

Build the corpus once:
  taxrag crawl && taxrag chunk && taxrag index

Then ask:
  taxrag ask "რა არის დღგ?"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/taxrag/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newCrawlCmd(opts),
		newChunkCmd(opts),
		newIndexCmd(opts),
		newAskCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// services loads configuration and builds the container once for the
// running command.
func (o *rootOptions) services(cmd *cobra.Command, level app.Level, extra ...app.Option) (*app.Services, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	opts := append([]app.Option{
		app.WithVersion(version),
		app.WithLogOutput(cmd.ErrOrStderr()),
	}, extra...)
	return app.New(cmd.Context(), cfg, level, opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("taxrag by Fyrsmith Labs\n")
			cmd.Printf("Version:    %s\n", version)
			cmd.Printf("Commit:     %s\n", gitCommit)
			cmd.Printf("Build Date: %s\n", buildDate)
		},
	}
}
