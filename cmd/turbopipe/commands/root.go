// Package commands implements the turbopipe CLI.
package commands

import (
	"github.com/marmos91/turbopipe/cmd/turbopipe/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "turbopipe",
	Short: "TurboPipe - asynchronous buffer to descriptor writes",
	Long: `TurboPipe moves raw frame buffers to file descriptors (pipes, files,
encoder stdin) on a pool of writer goroutines, so the producer can render
the next frame while the previous one is still being written.

Use "turbopipe [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/turbopipe/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(pipeCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(statusCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
