package cmds

import (
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/tui/app"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newTuiCmd() *cobra.Command {
	d := &app.Dashboard{}
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Live dashboard of the running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			d.RepoRoot = opts.RepoRoot
			d.In, d.Out = cmd.InOrStdin(), cmd.OutOrStdout()

			docker, err := container.NewDockerRuntime()
			if err != nil {
				log.Debug().Err(err).Msg("docker unavailable, container services will show as stopped")
			} else {
				d.Runtime = docker
				defer func() { _ = docker.Close() }()
			}
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&d.Refresh, "refresh", time.Second, "How often the session state is polled")
	cmd.Flags().BoolVar(&d.AltScreen, "alt-screen", true, "Draw in the terminal's alternate screen")
	return cmd
}
