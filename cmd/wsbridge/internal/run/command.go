package run

import (
	"github.com/spf13/cobra"

	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal"
)

func NewRunCommand() *cobra.Command {
	var (
		debug      bool
		quiet      bool
		logFile    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge, speaking the host protocol on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCmd(debug, quiet, logFile, configPath)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable all logging")
	cmd.Flags().StringVarP(&logFile, "log-file", "l", "", "Mirror logs to a file")
	cmd.Flags().StringVarP(&configPath, "config", "c", internal.GetConfigPath(), "Path to the config file")

	return cmd
}
