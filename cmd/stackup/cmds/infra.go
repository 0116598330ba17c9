package cmds

import (
	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/spf13/cobra"
)

func newInfraDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infra-down",
		Short: "Stop the infrastructure containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()
			o.InfraDown(cmd.Context())
			return nil
		},
	}
}

func newInfraStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infra-status",
		Short: "Show the state of the infrastructure containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()
			return reported(o.InfraStatus(cmd.Context()))
		},
	}
}
