package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haxorport/haxorport-ports/internal/di"
)

var (
	// Container is the dependency injection container
	Container *di.Container

	// ConfigPath is the path to the configuration file
	ConfigPath string

	// LogLevel is the logging level
	LogLevel string

	// RootCmd is the root command for CLI
	RootCmd = &cobra.Command{
		Use:   "haxorport-ports",
		Short: "Haxorport Ports - remote port forwarding",
		Long: `Haxorport Ports forwards ports of a remote host to local ports.
Forwarded ports are reachable on localhost while the client runs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			Container = di.NewContainer()
			if err := Container.Initialize(ConfigPath, LogLevel); err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if Container != nil {
				if err := Container.Close(); err != nil && os.Getenv("LOG_LEVEL") == "debug" {
					fmt.Fprintf(os.Stderr, "Error while closing: %v\n", err)
				}
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&ConfigPath, "config", "c", "", "Path to configuration file (default: ~/.haxorport/ports.yaml)")
	RootCmd.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Set logging level (debug, info, warn, error)")
}
