package commands

import (
	"github.com/spf13/cobra"

	"github.com/chathub/chathub/internal/version"
)

// NewVersionCommand creates the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print the version number",
		Example: `  chathub version`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("ChatHub %s\n", version.Version)
			cmd.Printf("  Commit: %s\n", version.Commit)
			cmd.Printf("  Built:  %s\n", version.BuildDate)
		},
	}
}
