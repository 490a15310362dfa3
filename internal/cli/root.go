// Package cli holds the cobra commands behind the silky binaries.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// NewRootCommand creates the root command for the silky CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "silky",
		Short: "silky - analysis engine host",
		Long: `silky supervises an analysis engine process, exchanges analysis
requests and results with it, and exposes an admin HTTP API.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the silky version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("silky " + Version + "\n"))
			return err
		},
	}
}
