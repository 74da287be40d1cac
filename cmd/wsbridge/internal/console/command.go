package console

import (
	"github.com/spf13/cobra"

	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal"
)

func NewConsoleCommand() *cobra.Command {
	var (
		debug      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console for exercising the bridge without a host",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(debug, configPath)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&configPath, "config", "c", internal.GetConfigPath(), "Path to the config file")

	return cmd
}
