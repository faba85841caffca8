package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
)

var (
	// add-forward flags
	forwardRemote      string
	forwardLocal       string
	forwardHost        string
	forwardName        string
	forwardDescription string
)

// configCmd is the command to manage configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage Haxorport Ports configuration.`,
}

// configShowCmd is the command to display configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configuration",
	Long:  `Display Haxorport Ports configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(cmd.OutOrStdout(), Container.Config)
	},
}

// configSetCmd is the command to set configuration
var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set configuration",
	Long: `Set Haxorport Ports configuration.
Examples:
  haxorport-ports config set server_address example.com
  haxorport-ports config set control_port 8080
  haxorport-ports config set connection_mode websocket
  haxorport-ports config set auth_token my-token
  haxorport-ports config set default_host devbox
  haxorport-ports config set log_level debug
  haxorport-ports config set log_file /path/to/log.txt`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]

		switch key {
		case "server_address":
			Container.ConfigService.SetServerAddress(Container.Config, value)
		case "control_port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("port must be a number: %w", err)
			}
			Container.ConfigService.SetControlPort(Container.Config, port)
		case "connection_mode":
			if err := Container.ConfigService.SetConnectionMode(Container.Config, value); err != nil {
				return err
			}
		case "auth_token":
			Container.ConfigService.SetAuthToken(Container.Config, value)
		case "default_host":
			if err := Container.ConfigService.SetDefaultHost(Container.Config, value); err != nil {
				return err
			}
		case "log_level":
			Container.ConfigService.SetLogLevel(Container.Config, value)
		case "log_file":
			Container.ConfigService.SetLogFile(Container.Config, value)
		default:
			return fmt.Errorf("invalid configuration key: %s", key)
		}

		if err := Container.ConfigService.SaveConfig(Container.Config, ConfigPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s successfully changed to %s\n", key, value)
		return nil
	},
}

// configAddForwardCmd is the command to add a forward to configuration
var configAddForwardCmd = &cobra.Command{
	Use:   "add-forward",
	Short: "Add forward to configuration",
	Long: `Add a port forward that is restored every time the client starts.
Examples:
  haxorport-ports config add-forward --remote 8080
  haxorport-ports config add-forward --remote 5432 --local 15432 --host devbox --name postgres`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forward := model.TunnelConfig{
			Remote:      forwardRemote,
			Host:        forwardHost,
			Local:       forwardLocal,
			Name:        forwardName,
			Description: forwardDescription,
		}
		if err := Container.ConfigService.AddForward(Container.Config, forward); err != nil {
			return err
		}

		if err := Container.ConfigService.SaveConfig(Container.Config, ConfigPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Forward of remote port %s successfully added to configuration\n", forwardRemote)
		return nil
	},
}

// configRemoveForwardCmd is the command to remove a forward from configuration
var configRemoveForwardCmd = &cobra.Command{
	Use:   "remove-forward [remote]",
	Short: "Remove forward from configuration",
	Long: `Remove a port forward from Haxorport Ports configuration.
Examples:
  haxorport-ports config remove-forward 8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[0]

		if !Container.ConfigService.RemoveForward(Container.Config, remote) {
			return fmt.Errorf("forward of remote port %s not found", remote)
		}

		if err := Container.ConfigService.SaveConfig(Container.Config, ConfigPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Forward of remote port %s successfully removed from configuration\n", remote)
		return nil
	},
}

func printConfig(w io.Writer, config *model.Config) {
	fmt.Fprintln(w, "Haxorport Ports Configuration:")
	fmt.Fprintf(w, "Connection Mode: %s\n", config.ConnectionMode)
	fmt.Fprintf(w, "Server Address: %s\n", config.ServerAddress)
	fmt.Fprintf(w, "Control Port: %d\n", config.ControlPort)
	fmt.Fprintf(w, "Auth Token: %s\n", maskString(config.AuthToken))
	defaultHost := config.ResolveDefaultHost()
	fmt.Fprintf(w, "Default Host: %s\n", defaultHost.String())
	fmt.Fprintf(w, "Log Level: %s\n", config.LogLevel)
	fmt.Fprintf(w, "Log File: %s\n", config.LogFile)

	if len(config.Forwards) > 0 {
		fmt.Fprintln(w, "\nForwards:")
		for i, forward := range config.Forwards {
			local := forward.Local
			if local == "" {
				local = forward.Remote
			}
			fmt.Fprintf(w, "  %d. %s -> localhost:%s", i+1, forward.Remote, local)
			if forward.Name != "" {
				fmt.Fprintf(w, " (%s)", forward.Name)
			}
			fmt.Fprintln(w)
			if forward.Host != "" {
				fmt.Fprintf(w, "     Host: %s\n", forward.Host)
			}
			if forward.Description != "" {
				fmt.Fprintf(w, "     Description: %s\n", forward.Description)
			}
		}
	}
}

// maskString hides part of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configAddForwardCmd)
	configCmd.AddCommand(configRemoveForwardCmd)

	configAddForwardCmd.Flags().StringVarP(&forwardRemote, "remote", "r", "", "Remote port to forward")
	configAddForwardCmd.Flags().StringVarP(&forwardLocal, "local", "l", "", "Local port (default: same as remote)")
	configAddForwardCmd.Flags().StringVar(&forwardHost, "host", "", "Remote host (default: default_host)")
	configAddForwardCmd.Flags().StringVarP(&forwardName, "name", "n", "", "Port name")
	configAddForwardCmd.Flags().StringVarP(&forwardDescription, "description", "d", "", "Port description")

	configAddForwardCmd.MarkFlagRequired("remote")
}
