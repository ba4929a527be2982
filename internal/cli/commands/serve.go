package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/config"
	"github.com/chathub/chathub/internal/gateway"
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ChatHub gateway server",
		Long:  `Start the gateway server, initialize the configured providers and serve the chat API until interrupted.`,
		Example: `  chathub serve
  chathub serve --host 0.0.0.0 --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			cfg, err := config.Load()
			if err != nil {
				if !errors.Is(err, config.ErrConfigNotFound) {
					return fmt.Errorf("load config: %w", err)
				}
				fmt.Println("No config file found, starting with defaults.")
				fmt.Printf("Create one with: chathub config init\n\n")
				cfg = &config.Config{}
				cfg.Gateway.Bind = defaultGatewayHost
				cfg.Gateway.Port = fallbackGatewayPort
				cfg.Browser.Headless = true
				cfg.Session.TTLSeconds = 3600
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if cmd.Flags().Changed("host") {
				cfg.Gateway.Bind = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Logging.Verbose = true
			}

			srv := gateway.New(cfg)
			if err := srv.BuildProviders(); err != nil {
				return fmt.Errorf("build providers: %w", err)
			}
			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&host, "host", defaultGatewayHost, "Bind address")
	cmd.Flags().IntVarP(&port, "port", "p", fallbackGatewayPort, "Listen port")

	return cmd
}
