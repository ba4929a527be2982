// Package cli provides the command-line interface for ChatHub.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/cli/commands"
	"github.com/chathub/chathub/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "chathub",
	Short: "ChatHub - Unified gateway for AI chat providers",
	Long: `ChatHub exposes one HTTP and WebSocket API over heterogeneous AI chat
backends: OpenAI-compatible APIs and browser-automated web chat
interfaces (Claude, Gemini, Z.AI, Copilot and custom pages).`,
	Version: version.Version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewProvidersCommand())
	rootCmd.AddCommand(commands.NewChatCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewTuiCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.chathub/chathub.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
