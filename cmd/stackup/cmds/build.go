package cmds

import (
	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Clean and build the solution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()
			return reported(o.Build(cmd.Context()))
		},
	}
}
