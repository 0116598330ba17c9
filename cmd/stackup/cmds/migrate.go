package cmds

import (
	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies migrations unconditionally. A failed migration is reported as a warning and does not fail the command.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()
			o.Migrate(cmd.Context())
			return nil
		},
	}
}
