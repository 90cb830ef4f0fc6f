// Package admincli implements sts-admin, the offline companion to the
// sts-proxy server.
package admincli

import (
	"io"

	"github.com/spf13/cobra"
)

// Execute runs the command line in args and returns the command error.
func Execute(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sts-admin",
		Short:         "Inspect guides and exercise the sts-proxy pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVersionCmd())
	root.AddCommand(newGuidesCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newCallCmd())
	return root
}
