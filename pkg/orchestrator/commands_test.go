package orchestrator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	h := newHarness(t, testConfig(), Flags{})
	require.NoError(t, h.orch.Build(context.Background()))
	require.Equal(t, []string{"IDLE: dotnet --version", "IDLE: dotnet clean", "IDLE: dotnet build"}, h.recorded())

	h = newHarness(t, testConfig(), Flags{})
	h.stepErr = errors.New("exit status 1")
	err := h.orch.Build(context.Background())
	var be *BuildError
	require.True(t, errors.As(err, &be))
	require.Contains(t, h.out.String(), "build step build failed")
}

func TestMigrate_FailureIsWarning(t *testing.T) {
	h := newHarness(t, testConfig(), Flags{})
	h.migrator.err = errors.New("connection refused")
	h.orch.Migrate(context.Background())
	require.Equal(t, 1, h.migrator.calls)
	require.Contains(t, h.out.String(), "migrations failed: connection refused")
	require.True(t, h.orch.prep.MigrationsNeeded())

	h.migrator.err = nil
	h.orch.Migrate(context.Background())
	require.Contains(t, h.out.String(), "migrations applied")
	_, err := os.Stat(h.orch.prep.MarkerPath())
	require.NoError(t, err)
}

func TestClean_ReportsRemovals(t *testing.T) {
	cfg := testConfig()
	cfg.Prepare.CleanDirs = []string{"obj"}
	h := newHarness(t, cfg, Flags{})
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "src", "obj"), 0o755))

	h.orch.Clean(context.Background())
	require.NoDirExists(t, filepath.Join(h.root, "src", "obj"))
	require.Contains(t, h.out.String(), "removed 1 build artifacts")
}

func TestInfraDown(t *testing.T) {
	h := newHarness(t, testConfig(postgresSpec()), Flags{})
	h.orch.InfraDown(context.Background())
	require.Equal(t, []string{"IDLE: docker compose -f docker-compose.yml down"}, h.recorded())
	require.Contains(t, h.out.String(), "infrastructure stopped")
}

func TestInfraStatus(t *testing.T) {
	redis := engine.ServiceSpec{Name: "redis", Runtime: engine.RuntimeContainer, Container: "t-redis"}
	pgadmin := engine.ServiceSpec{Name: "pgadmin", Runtime: engine.RuntimeContainer, Container: "t-pgadmin"}
	h := newHarness(t, testConfig(postgresSpec(), redis, pgadmin, sleeper("web")), Flags{})
	h.rt.SetRunning("t-postgres", true)
	h.rt.SetRunning("t-redis", false)

	rows, err := h.orch.ContainerStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "ok", rows[0].State.Level())
	require.Equal(t, "down", rows[1].State.Level())
	require.Equal(t, "not created", rows[2].State.Status)

	require.NoError(t, h.orch.InfraStatus(context.Background()))
	out := h.out.String()
	require.Contains(t, out, "✓")
	require.Contains(t, out, "✗")
	require.Contains(t, out, "t-pgadmin")
	require.NotContains(t, out, "web")
}

func TestDiagnostics(t *testing.T) {
	mr := miniredis.RunT(t)
	api := statusServer(t, http.StatusOK, "healthy")
	web := statusServer(t, http.StatusInternalServerError, "")

	cfg := testConfig(postgresSpec())
	cfg.Diagnostics = config.Diagnostics{
		CriticalFiles: []string{"App.sln", "docker-compose.yml"},
		Endpoints: []config.Endpoint{
			{Name: "api health", URL: api.URL + "/health"},
			{Name: "web", URL: web.URL},
		},
		RedisAddr: mr.Addr(),
	}
	h := newHarness(t, cfg, Flags{})
	h.orch.opts.Env = config.Env{RequestTimeout: time.Second, DelayBetweenTests: 500 * time.Millisecond, TestPassword: "hunter22"}
	h.rt.SetRunning("t-postgres", true)
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "App.sln"), nil, 0o644))

	report, err := h.orch.Diagnostics(context.Background())
	require.NoError(t, err)

	var titles []string
	for _, s := range report.Sections {
		titles = append(titles, s.Title)
	}
	require.Equal(t, []string{"toolchain", "container runtime", "critical files", "containers", "endpoints", "data stores", "session", "environment"}, titles)

	levels := func(title string) map[string]Level {
		out := map[string]Level{}
		for _, s := range report.Sections {
			if s.Title == title {
				for _, f := range s.Findings {
					out[f.Label] = f.Level
				}
			}
		}
		return out
	}
	require.Equal(t, LevelOK, levels("critical files")["App.sln"])
	require.Equal(t, LevelFail, levels("critical files")["docker-compose.yml"])
	require.Equal(t, LevelOK, levels("containers")["t-postgres"])
	require.Equal(t, LevelOK, levels("endpoints")["api health"])
	require.Equal(t, LevelFail, levels("endpoints")["web"])
	require.Equal(t, LevelOK, levels("data stores")["redis PING "+mr.Addr()])
	require.Equal(t, 2, report.Failures())

	h.orch.PrintDiagnostics(report)
	out := h.out.String()
	require.Contains(t, out, "TEST_PASSWORD: h******2")
	require.NotContains(t, out, "hunter22")
	require.Contains(t, out, "2 problems found")
}

func TestDiagnostics_SessionStats(t *testing.T) {
	h := newHarness(t, testConfig(), Flags{})
	require.NoError(t, state.Save(h.root, &state.State{
		Workflow: "start",
		Phase:    "RUNNING",
		PID:      os.Getpid(),
		Services: []state.ServiceRecord{
			{Name: "self", PID: os.Getpid()},
			{Name: "api", Container: "t-api"},
		},
	}))

	report, err := h.orch.Diagnostics(context.Background())
	require.NoError(t, err)
	var session Section
	for _, s := range report.Sections {
		if s.Title == "session" {
			session = s
		}
	}
	require.Len(t, session.Findings, 3)
	require.Equal(t, LevelOK, session.Findings[1].Level)
	require.Equal(t, "self", session.Findings[1].Label)
	require.Equal(t, "container t-api", session.Findings[2].Detail)
}

func TestHandleSignals_FirstSignalCancelsOnce(t *testing.T) {
	var cancels atomic.Int32
	received := make(chan os.Signal, 4)
	stop := handleSignals(func() { cancels.Add(1) }, received)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	<-received
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	<-received
	require.Equal(t, int32(1), cancels.Load())
}
