// Package commands defines all Cobra CLI commands for the docchat binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docchat/docchat-go/internal/audit"
	"github.com/docchat/docchat-go/internal/config"
	"github.com/docchat/docchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docchat",
		Short: "docchat — ask questions about your PDF documents",
		Long: `docchat is a local-first document question-answering assistant.

Ingest a PDF once, then ask questions about it. Answers are generated
strictly from the document's own text and carry page-level citations;
when the document does not contain the answer, docchat says so instead
of guessing.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.docchat/config.yaml).
See 'docchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Best-effort .env load so local runs need no exported env.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docchat/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
