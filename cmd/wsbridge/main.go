// wsbridge - Touch Portal Websockets bridge
// Routes "Send Message" actions from the host to named WebSocket endpoints.
// License: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal"
	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal/console"
	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal/manifest"
	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal/run"
	"github.com/korvid-labs/wsbridge/cmd/wsbridge/internal/version"
)

func NewWsbridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wsbridge",
		Short:   fmt.Sprintf("wsbridge - Touch Portal Websockets bridge v%s", internal.GetVersion()),
		Example: "wsbridge run",
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		console.NewConsoleCommand(),
		manifest.NewManifestCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewWsbridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
