package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taxrag/internal/embeddings"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var forceDownload bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Download the ONNX runtime for local fastembed embeddings",
		Long: `Download the ONNX runtime library required by the fastembed provider.
The library is installed to:
  ~/.config/taxrag/lib/

If ONNX_PATH environment variable is set, that path takes precedence.

Examples:
  taxrag init
  taxrag init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			if !forceDownload {
				if path := embeddings.GetONNXLibraryPath(); path != "" {
					cmd.Printf("ONNX runtime already installed at: %s\n", path)
					cmd.Println("Use --force to re-download.")
					return nil
				}
			}

			installer := &embeddings.ONNXInstaller{
				Version: cfg.Embeddings.ONNXVersion,
				Out:     cmd.OutOrStdout(),
			}
			path, err := installer.Download(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to download ONNX runtime: %w", err)
			}
			cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&forceDownload, "force", "f", false, "Force re-download even if ONNX runtime exists")
	return cmd
}
