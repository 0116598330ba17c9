package cmds

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	// Unknown commands reach the root command: print help and fail.
	root.Args = cobra.ArbitraryArgs
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Help(); err != nil {
			return err
		}
		if len(args) > 0 {
			return errors.Errorf("unknown command %q", args[0])
		}
		return nil
	}

	for _, w := range workflowCommands {
		root.AddCommand(newWorkflowCmd(w))
	}
	root.AddCommand(newBuildCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newInfraDownCmd())
	root.AddCommand(newInfraStatusCmd())
	root.AddCommand(newDiagnosticsCmd())
	root.AddCommand(newTuiCmd())
	return nil
}
