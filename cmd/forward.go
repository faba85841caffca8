package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haxorport/haxorport-ports/internal/application/service"
	"github.com/haxorport/haxorport-ports/internal/domain/model"
)

var (
	forwardCmdLocal   string
	forwardCmdHost    string
	forwardCmdName    string
	forwardCmdNoSaved bool
	forwardCmdPromote bool
)

// forwardCmd forwards remote ports until interrupted
var forwardCmd = &cobra.Command{
	Use:   "forward [remote...]",
	Short: "Forward remote ports",
	Long: `Forward remote ports to localhost and keep them open until Ctrl+C.
Forwards saved in the configuration are restored as well.
Examples:
  haxorport-ports forward 8080
  haxorport-ports forward 5432 --local 15432 --host devbox --name postgres
  haxorport-ports forward --no-saved 3000 3001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if forwardCmdLocal != "" && len(args) != 1 {
			return fmt.Errorf("--local requires exactly one remote port")
		}
		host, err := model.ParseHost(forwardCmdHost)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tunnels := Container.TunnelService
		unsubscribe := watchPorts(out, tunnels)
		defer unsubscribe()

		Container.Start()

		requested := len(args)
		if !forwardCmdNoSaved {
			requested += tunnels.ForwardConfigured(Container.Config)
		}
		for _, remote := range args {
			tunnels.ForwardPort(remote, model.ForwardOptions{
				Host:  host,
				Local: forwardCmdLocal,
				Name:  forwardCmdName,
			})
		}
		if forwardCmdPromote {
			for _, candidate := range tunnels.List().Candidates {
				tunnels.PromoteCandidate(candidate.Remote)
			}
		}

		if requested == 0 && !forwardCmdPromote {
			return fmt.Errorf("nothing to forward: pass remote ports or add forwards to the configuration")
		}
		printListing(out, tunnels, tunnels.List())

		fmt.Fprintln(out, "Press Ctrl+C to close all forwarded ports")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		<-sigCh

		fmt.Fprintln(out)
		tunnels.Shutdown()
		return nil
	},
}

// watchPorts prints every change of the port mapping as it happens
func watchPorts(w io.Writer, tunnels *service.TunnelService) func() {
	m := tunnels.Model()
	unsubscribers := []func(){
		m.OnPortForwarded(func(t model.Tunnel) {
			addr, _ := tunnels.Resolve(t.Remote)
			fmt.Fprintf(w, "[%s] %s -> %s\n", model.EventPortForwarded, t.Label(), addr)
		}),
		m.OnPortNameChanged(func(remote string) {
			if t, ok := m.Lookup(remote); ok {
				fmt.Fprintf(w, "[%s] %s is now %s\n", model.EventPortNameChanged, remote, t.Label())
			}
		}),
		m.OnPortClosed(func(remote string) {
			fmt.Fprintf(w, "[%s] %s\n", model.EventPortClosed, remote)
		}),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

func printListing(w io.Writer, tunnels *service.TunnelService, listing service.PortListing) {
	section := func(kind model.TunnelKind, entries []model.Tunnel) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", kind)
		for _, t := range entries {
			addr, ok := tunnels.Resolve(t.Remote)
			if !ok {
				fmt.Fprintf(w, "  %-8s %s\n", t.Remote, t.Label())
				continue
			}
			fmt.Fprintf(w, "  %-8s %-24s %s", t.Remote, addr, t.Host.String())
			if t.Name != "" {
				fmt.Fprintf(w, " (%s)", t.Name)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "=================================================")
	section(model.TunnelKindForwarded, listing.Forwarded)
	section(model.TunnelKindPublished, listing.Published)
	section(model.TunnelKindCandidate, listing.Candidates)
	fmt.Fprintln(w, "=================================================")
}

func init() {
	RootCmd.AddCommand(forwardCmd)

	forwardCmd.Flags().StringVarP(&forwardCmdLocal, "local", "l", "", "Local port (default: same as remote, single remote only)")
	forwardCmd.Flags().StringVar(&forwardCmdHost, "host", "", "Remote host (default: default_host)")
	forwardCmd.Flags().StringVarP(&forwardCmdName, "name", "n", "", "Port name")
	forwardCmd.Flags().BoolVar(&forwardCmdNoSaved, "no-saved", false, "Do not restore forwards saved in the configuration")
	forwardCmd.Flags().BoolVar(&forwardCmdPromote, "all-detected", false, "Also forward every detected remote listener")
}
