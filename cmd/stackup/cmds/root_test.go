package cmds

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	root := &cobra.Command{Use: "stackup", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("log-level", "info", "")
	root.PersistentFlags().String("log-file", "", "")
	AddRootFlags(root)
	require.NoError(t, AddCommands(root))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root, &out
}

func TestRoot_NoCommandPrintsHelp(t *testing.T) {
	root, out := newTestRoot(t)
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "Available Commands")
	require.Contains(t, out.String(), "infra-status")
}

func TestRoot_UnknownCommandFails(t *testing.T) {
	root, out := newTestRoot(t, "deploy")
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, out.String(), "Available Commands")

	var stderr bytes.Buffer
	require.Equal(t, 1, ExitCode(err, &stderr))
	require.Contains(t, stderr.String(), `unknown command "deploy"`)
}

func TestWorkflowCommand_DryRun(t *testing.T) {
	root, out := newTestRoot(t, "--repo-root", t.TempDir(), "--dry-run", "start", "--stop-infra")
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "stackup start (dry run)")
	require.Contains(t, out.String(), "api -> web")
}

func TestWorkflowCommand_FlagsPerWorkflow(t *testing.T) {
	root, _ := newTestRoot(t)
	for _, c := range root.Commands() {
		switch c.Name() {
		case "infra-up":
			require.Nil(t, c.Flags().Lookup("no-browser"))
			require.NotNil(t, c.Flags().Lookup("force"))
		case "web-only":
			require.Nil(t, c.Flags().Lookup("stop-infra"))
			require.NotNil(t, c.Flags().Lookup("rebuild"))
		}
	}
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 0, ExitCode(nil, &stderr))
	require.Equal(t, 0, ExitCode(orchestrator.ErrInterrupted, &stderr))
	require.Equal(t, 1, ExitCode(reported(errors.New("build failed")), &stderr))
	require.Empty(t, stderr.String())
	require.Equal(t, 1, ExitCode(errors.New("bad flag"), &stderr))
	require.Contains(t, stderr.String(), "Error: bad flag")
}

func TestApplyLoggingEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "run.log")
	root, _ := newTestRoot(t)
	require.NoError(t, ApplyLoggingEnv(root))
	lvl, _ := root.PersistentFlags().GetString("log-level")
	file, _ := root.PersistentFlags().GetString("log-file")
	require.Equal(t, "debug", lvl)
	require.Equal(t, "run.log", file)

	root, _ = newTestRoot(t)
	require.NoError(t, root.PersistentFlags().Set("log-level", "warn"))
	require.NoError(t, ApplyLoggingEnv(root))
	lvl, _ = root.PersistentFlags().GetString("log-level")
	require.Equal(t, "warn", lvl)
}
