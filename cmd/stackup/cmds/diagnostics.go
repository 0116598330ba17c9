package cmds

import (
	"encoding/json"

	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDiagnosticsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Check the toolchain, containers, endpoints and running session",
		Long:  "Runs every check and prints a report. Problems are reported but never fail the command.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, orchestrator.Flags{})
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := o.Diagnostics(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "diagnostics")
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			o.PrintDiagnostics(report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
