package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version
const Version = "0.1.0"

// versionCmd is the command to display version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Long:  `Display Haxorport Ports version.`,
	// version needs neither configuration nor transport
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Haxorport Ports v%s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
