// Package commands implements the partyline CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "partyline",
	Short: "Distributed file-lock coordination server",
	Long: `partyline coordinates exclusive and shared access to file paths,
both within a single process and across a cluster of nodes, using a
pluggable global-lock store (memory, badger, or postgres).

Use "partyline [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/partyline/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lockInfoCmd)
	rootCmd.AddCommand(versionCmd)
}
