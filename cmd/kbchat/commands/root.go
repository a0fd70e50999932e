// Package commands defines all Cobra CLI commands for the kbchat binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/kbchat-go/internal/audit"
	"github.com/54b3r/kbchat-go/internal/config"
	"github.com/54b3r/kbchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kbchat",
		Short: "kbchat — RAG-backed chat service over a managed knowledge base",
		Long: `kbchat keeps a vector index in sync with an upstream content API and
answers questions grounded in the indexed knowledge base.

It exposes an HTTP API (POST /chat, GET /health) in serve mode, answers a
single question from the command line in ask mode, and rebuilds the index
on demand in sync mode.

The chat model provider is selected via the MODEL_PROVIDER environment
variable or a YAML config file (~/.kbchat/config.yaml).
See 'kbchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.kbchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewSyncCmd(),
		NewVersionCmd(),
	)

	return root
}
