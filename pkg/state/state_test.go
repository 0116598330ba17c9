package state

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	st := &State{RepoRoot: root, Workflow: "start", Phase: "RUNNING", KeepInfra: true}
	st.Upsert(ServiceRecord{Name: "postgres", Runtime: "container", Container: "synqcore-postgres", Infra: true, Ready: true})
	st.Upsert(ServiceRecord{Name: "web", Runtime: "process", PID: 42, Port: 5226})
	st.Upsert(ServiceRecord{Name: "web", Runtime: "process", PID: 43, Port: 5226})

	require.NoError(t, Save(root, st))
	require.FileExists(t, filepath.Join(root, ".stackup", "state.json"))

	got, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "RUNNING", got.Phase)
	require.Len(t, got.Services, 2)
	require.Equal(t, 43, got.Find("web").PID)
	require.False(t, got.UpdatedAt.IsZero())

	got.Drop("postgres")
	require.Nil(t, got.Find("postgres"))

	require.NoError(t, Remove(root))
	require.NoError(t, Remove(root))
	_, err = Load(root)
	require.Error(t, err)
}

func TestProcessAlive(t *testing.T) {
	require.False(t, ProcessAlive(0))
	require.True(t, ProcessAlive(os.Getpid()))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.False(t, ProcessAlive(cmd.Process.Pid))
}

func TestSanitizeEnv(t *testing.T) {
	got := SanitizeEnv(map[string]string{
		"ASPNETCORE_ENVIRONMENT":               "Development",
		"TEST_PASSWORD":                        "hunter2",
		"ConnectionStrings__DefaultConnection": "Host=localhost;Password=x",
		"JWT_SECRET":                           "abc",
	})
	require.Equal(t, "Development", got["ASPNETCORE_ENVIRONMENT"])
	require.Equal(t, redactedValue, got["TEST_PASSWORD"])
	require.Equal(t, redactedValue, got["ConnectionStrings__DefaultConnection"])
	require.Equal(t, redactedValue, got["JWT_SECRET"])
	require.Nil(t, SanitizeEnv(nil))
}

func TestMask(t *testing.T) {
	require.Equal(t, "(unset)", Mask(""))
	require.Equal(t, "**", Mask("ab"))
	require.Equal(t, "A*****3", Mask("Admin@3"))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.log")
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("line ")
		b.WriteString(string(rune('a' + i%26)))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, err := TailLines(path, 3, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"line v", "line w", "line x"}, lines)

	// a small byte window drops the partial first line
	lines, err = TailLines(path, 100, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"line x"}, lines)

	empty := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	lines, err = TailLines(empty, 5, 0)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestExitInfoSummary(t *testing.T) {
	code := 3
	require.Equal(t, "exited with code 3", ExitInfo{ExitCode: &code}.Summary())
	require.Equal(t, "killed by SIGKILL", ExitInfo{Signal: "SIGKILL"}.Summary())

	path := filepath.Join(t.TempDir(), "x", "web.exit.json")
	require.NoError(t, WriteExitInfo(path, ExitInfo{Service: "web", ExitCode: &code, OutputTail: []string{"boom"}}))
	info, err := ReadExitInfo(path)
	require.NoError(t, err)
	require.Equal(t, "web", info.Service)
	require.Equal(t, []string{"boom"}, info.OutputTail)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExitInfoPath(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.Equal(t,
		filepath.Join(LogsDir("/repo"), "api-20260304-050607.exit.json"),
		ExitInfoPath("/repo", "api", at))
}
