package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/config"
)

// NewConfigCommand creates the config subcommand.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the ChatHub configuration",
		Example: `  chathub config init
  chathub config show
  chathub config path`,
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			path := config.ConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := starterConfig()
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set OPENAI_API_KEY (or edit the file) and run: chathub serve")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// starterConfig is the template written by config init: one API provider and
// two web providers, all selectable per request.
func starterConfig() *config.Config {
	cfg := &config.Config{
		Env: map[string]string{},
		Providers: map[string]config.ProviderConfig{
			"openai": {
				Type:    config.ProviderTypeAPI,
				Default: true,
				APIKey:  "${OPENAI_API_KEY}",
				Model:   "gpt-4o-mini",
			},
			"claude": {
				Type:    config.ProviderTypeWeb,
				Profile: "claude",
			},
			"gemini": {
				Type:    config.ProviderTypeWeb,
				Profile: "gemini",
			},
		},
	}
	cfg.Gateway.Bind = defaultGatewayHost
	cfg.Gateway.Port = fallbackGatewayPort
	cfg.Gateway.Auth.Mode = "token"
	cfg.Browser.Headless = true
	cfg.Session.TTLSeconds = 3600
	cfg.Maint.SessionCleanup = "@every 5m"
	cfg.Maint.HealthProbe = "@every 2m"
	return cfg
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			cfg, err := config.Load()
			if err != nil {
				if errors.Is(err, config.ErrConfigNotFound) {
					return fmt.Errorf("no config file found (run: chathub config init)")
				}
				return err
			}

			// Do not echo secrets back to the terminal.
			cfg.Gateway.Auth.Token = redact(cfg.Gateway.Auth.Token)
			for name, p := range cfg.Providers {
				p.APIKey = redact(p.APIKey)
				cfg.Providers[name] = p
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			applyConfigFlag(cmd)
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
