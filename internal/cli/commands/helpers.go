// Package commands provides CLI subcommands for ChatHub.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/config"
)

const (
	defaultGatewayHost  = "127.0.0.1"
	fallbackGatewayPort = 8090
)

// applyConfigFlag points the config loader at an explicit file when the
// global --config flag is set.
func applyConfigFlag(cmd *cobra.Command) {
	if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
		_ = os.Setenv("CHATHUB_CONFIG_PATH", path)
	}
}

// gatewayAddr resolves the gateway address from flags, falling back to the
// config file and then the built-in default port.
func gatewayAddr(host string, port int) string {
	if port == 0 {
		if cfg, err := config.Load(); err == nil && cfg.Gateway.Port > 0 {
			port = cfg.Gateway.Port
		} else {
			port = fallbackGatewayPort
		}
	}
	if host == "" {
		host = defaultGatewayHost
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// newClient builds the HTTP client used to talk to a running gateway.
// The auth token comes from the flag, or from the config file when empty.
func newClient(baseURL, token string) *resty.Client {
	if token == "" {
		if cfg, err := config.Load(); err == nil {
			token = cfg.Gateway.Auth.Token
		}
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return client
}

// addGatewayFlags registers the connection flags shared by the client
// commands.
func addGatewayFlags(cmd *cobra.Command, host *string, port *int, token *string) {
	cmd.Flags().StringVar(host, "host", defaultGatewayHost, "Gateway host")
	cmd.Flags().IntVar(port, "port", 0, "Gateway port (default: from config file, or 8090)")
	cmd.Flags().StringVar(token, "token", "", "Gateway auth token (default: from config file)")
}
