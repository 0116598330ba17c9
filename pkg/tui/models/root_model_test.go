package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) tui.StateSnapshot {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "api.log")
	require.NoError(t, os.WriteFile(logPath, []byte("booting\nNow listening on: http://localhost:5000\n"), 0o644))
	return tui.StateSnapshot{
		RepoRoot: "/repo",
		At:       time.Now(),
		Exists:   true,
		State: &state.State{
			Workflow:  "start",
			Phase:     "RUNNING",
			CreatedAt: time.Now().Add(-time.Minute),
			Services: []state.ServiceRecord{
				{Name: "postgres", Runtime: "container", Infra: true, Container: "t-postgres"},
				{Name: "api", Runtime: "process", PID: 4242, URL: "http://localhost:5000", LogPath: logPath},
			},
		},
		Alive:  map[string]bool{"postgres": true, "api": true},
		Health: map[string]*tui.HealthResult{"api": {Status: tui.HealthHealthy, Endpoint: "GET http://localhost:5000/health"}},
	}
}

func update(t *testing.T, m RootModel, msg tea.Msg) (RootModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(RootModel), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRootModel_NavigatesToServiceAndBack(t *testing.T) {
	m := NewRootModel()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, tui.StateSnapshotMsg{Snapshot: testSnapshot(t)})

	view := m.View()
	require.Contains(t, view, "Services (2)")
	require.Contains(t, view, "t-postgres")
	require.Contains(t, view, "RUNNING")

	m, _ = update(t, m, key("down"))
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	nav := cmd()
	require.Equal(t, tui.NavigateToServiceMsg{Name: "api"}, nav)

	m, cmd = update(t, m, nav)
	require.NotNil(t, cmd)
	require.Equal(t, ViewService, m.Active())
	require.Contains(t, m.View(), "Now listening on")
	require.Contains(t, m.View(), "health healthy")

	m, cmd = update(t, m, key("esc"))
	m, _ = update(t, m, cmd())
	require.Equal(t, ViewDashboard, m.Active())
}

func TestRootModel_EventLogFilter(t *testing.T) {
	m := NewRootModel()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, tui.EventLogAppendMsg{Entry: tui.EventLogEntry{At: time.Now(), Source: "api", Level: tui.LogLevelError, Text: "service exit: api pid=1"}})
	m, _ = update(t, m, tui.EventLogAppendMsg{Entry: tui.EventLogEntry{At: time.Now(), Source: "session", Level: tui.LogLevelInfo, Text: "phase: RUNNING"}})

	m, _ = update(t, m, key("tab"))
	require.Equal(t, ViewEvents, m.Active())
	require.Contains(t, m.View(), "Events (2)")

	m, _ = update(t, m, key("/"))
	for _, r := range "sess" {
		m, _ = update(t, m, key(string(r)))
	}
	m, _ = update(t, m, key("enter"))

	view := m.View()
	require.Contains(t, view, "phase: RUNNING")
	require.NotContains(t, view, "service exit")
}

func TestDashboard_NoSession(t *testing.T) {
	m := NewDashboardModel().WithSnapshot(tui.StateSnapshot{RepoRoot: "/repo"})
	require.Contains(t, m.View(), "no session running in /repo")
	require.Equal(t, "", m.Selected())
}

func TestEventLog_LevelFilter(t *testing.T) {
	m := NewEventLogModel().WithSize(100, 20)
	m = m.Append(tui.EventLogEntry{At: time.Now(), Level: tui.LogLevelInfo, Text: "phase: RUNNING"})
	m = m.Append(tui.EventLogEntry{At: time.Now(), Level: tui.LogLevelError, Text: "service exit: web"})
	require.Contains(t, m.View(), "phase: RUNNING")

	for range 3 {
		m, _ = m.Update(key("l"))
	}
	view := m.View()
	require.Contains(t, view, "level>=error")
	require.Contains(t, view, "service exit: web")
	require.NotContains(t, view, "phase: RUNNING")
}
