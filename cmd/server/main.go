package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time using ldflags
var Version = "dev"

// Commit is set at build time using ldflags
var Commit = "unknown"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "workflowguard",
		Short: "Version backups and compliance reporting for HubSpot workflows",
		Long: `workflowguard keeps an append-only version history of HubSpot workflows,
records an audit trail of every change and builds compliance reports from both.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ./config.yaml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newMigrateCommand(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
