package main

import (
	"context"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/stackup/cmd/stackup/cmds"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "stackup",
	Short:         "stackup brings a local development stack up in dependency order",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cmds.ApplyLoggingEnv(cmd); err != nil {
			return err
		}
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	cobra.CheckErr(logging.AddLoggingLayerToRootCommand(rootCmd, "stackup"))
	cmds.AddRootFlags(rootCmd)
	cobra.CheckErr(cmds.AddCommands(rootCmd))
	os.Exit(cmds.ExitCode(rootCmd.ExecuteContext(context.Background()), rootCmd.ErrOrStderr()))
}
