package main

import (
	"github.com/joho/godotenv"
	"github.com/marmos91/dittons/internal/logger"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dittons",
		Short: "DittoNS - a hierarchical file namespace over pluggable block storage",
		Long: `DittoNS serves a hierarchical namespace of directories and files whose
content lives in a pluggable block store (memory, local filesystem or S3).
Clients talk to it through a WebHDFS-style REST API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// A .env file next to the binary may carry DITTONS_* overrides.
			if err := godotenv.Load(); err != nil {
				logger.Debug("No .env file found, using environment variables")
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/dittons/config.yaml)")

	cmd.AddCommand(
		newStartCmd(&configPath),
		newInitCmd(),
		newConfigCmd(&configPath),
		newFSCmd(),
	)
	return cmd
}
