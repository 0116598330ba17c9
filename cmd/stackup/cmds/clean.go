package cmds

import (
	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()
			o.Clean(cmd.Context())
			return nil
		},
	}
}
