package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathon-love/silky/internal/config"
	"github.com/jonathon-love/silky/internal/stubengine"
)

// NewStubEngineCommand creates the stand-in engine command. It accepts the
// same --con and --path arguments the manager passes to a real engine.
func NewStubEngineCommand() *cobra.Command {
	var (
		address     string
		sessionPath string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:          "silky-stub-engine --con=<address> --path=<session>",
		Short:        "Stand-in analysis engine for development and tests",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := config.NewLogger(cmd.ErrOrStderr(), config.ParseLogLevel(logLevel))
			err := stubengine.Run(cmd.Context(), address, sessionPath, logger)

			var exitErr *stubengine.ExitError
			if errors.As(err, &exitErr) {
				logger.Info("exiting on request", "code", exitErr.Code)
				os.Exit(exitErr.Code)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&address, "con", "", "manager connection string")
	cmd.Flags().StringVar(&sessionPath, "path", "", "session directory")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	_ = cmd.MarkFlagRequired("con")

	return cmd
}
