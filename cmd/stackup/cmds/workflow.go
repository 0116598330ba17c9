package cmds

import (
	"context"

	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type workflowCommand struct {
	name  string
	short string
	long  string
	// flags lists the workflow flags the command accepts.
	flags []string
}

var workflowCommands = []workflowCommand{
	{
		name:  "start",
		short: "Start infrastructure, the API and the web front end",
		long:  "Builds on first run, starts the infrastructure containers, applies migrations, then launches the API and the web front end and waits for each to become ready.",
		flags: []string{"reclaim-ports", "rebuild", "force", "no-browser", "stop-infra", "force-migrate"},
	},
	{
		name:  "api-only",
		short: "Start infrastructure and the API",
		flags: []string{"reclaim-ports", "force", "no-browser", "stop-infra", "force-migrate"},
	},
	{
		name:  "web-only",
		short: "Start only the web front end",
		flags: []string{"reclaim-ports", "rebuild", "force", "no-browser"},
	},
	{
		name:  "infra-up",
		short: "Start the infrastructure containers and leave them running",
		flags: []string{"force"},
	},
}

func addWorkflowFlags(fs *pflag.FlagSet, f *orchestrator.Flags, names []string) {
	for _, name := range names {
		switch name {
		case "reclaim-ports":
			fs.BoolVar(&f.ReclaimPorts, name, false, "Stop processes holding the service ports")
		case "rebuild":
			fs.BoolVar(&f.Rebuild, name, false, "Clean and build even when this is not the first run")
		case "force":
			fs.BoolVar(&f.Force, name, false, "Stop services left behind by a previous session")
		case "no-browser":
			fs.BoolVar(&f.NoBrowser, name, false, "Do not open a browser once the stack is ready")
		case "stop-infra":
			fs.BoolVar(&f.StopInfra, name, false, "Stop the infrastructure containers on exit")
		case "force-migrate":
			fs.BoolVar(&f.ForceMigrate, name, false, "Apply migrations even when they look up to date")
		}
	}
}

func newWorkflowCmd(w workflowCommand) *cobra.Command {
	var flags orchestrator.Flags
	cmd := &cobra.Command{
		Use:   w.name,
		Short: w.short,
		Long:  w.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeFn, err := newOrchestrator(cmd, flags)
			if err != nil {
				return err
			}
			defer closeFn()

			wf, ok := orchestrator.Workflows(o.Config())[w.name]
			if !ok {
				return errors.Errorf("unknown workflow %q", w.name)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stop := orchestrator.HandleSignals(cancel)
			defer stop()

			return reported(o.Run(ctx, wf))
		},
	}
	addWorkflowFlags(cmd.Flags(), &flags, w.flags)
	return cmd
}
