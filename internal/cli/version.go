package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the xcdb release, overridden at link time.
var Version = "0.1.0"

const modulePath = "github.com/Failure404/xmpp-cloud-auth"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the xcdb version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "xcdb v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
