package manifest

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

func NewManifestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Print the entry.tp manifest generated from the plugin declarations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := tpproto.BuildManifest().MarshalIndent()
			if err != nil {
				return fmt.Errorf("error building manifest: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
