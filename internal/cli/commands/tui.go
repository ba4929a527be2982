package commands

import (
	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/tui"
)

// NewTuiCommand creates the tui subcommand.
func NewTuiCommand() *cobra.Command {
	var (
		host         string
		port         int
		token        string
		providerName string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open a terminal chat UI connected to the gateway",
		Long: `Open a terminal chat UI connected to the gateway over WebSocket.

By default, connects using the port from the config file (gateway.port).
Use --host and --port flags to connect to a different gateway.`,
		Example: `  chathub tui
  chathub tui --provider claude
  chathub tui --host 192.168.1.100 --port 8090 --token <TOKEN>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)
			return tui.RunWithConfig(&tui.Config{
				Host:     host,
				Port:     port,
				Token:    token,
				Provider: providerName,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Gateway host address (default: localhost)")
	cmd.Flags().IntVar(&port, "port", 0, "Gateway port (default: from config file, or 8090)")
	cmd.Flags().StringVar(&token, "token", "", "Gateway authentication token")
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider to chat with (default: gateway default)")

	return cmd
}
