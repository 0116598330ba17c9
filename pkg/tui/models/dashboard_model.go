package models

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
	"github.com/go-go-golems/stackup/pkg/tui/widgets"
)

var serviceColumns = []widgets.TableColumn{
	{Header: "SERVICE", Width: 14},
	{Header: "KIND", Width: 10},
	{Header: "PID/CONTAINER", Width: 20},
	{Header: "CPU", Width: 7},
	{Header: "MEM", Width: 8},
	{Header: "HEALTH", Width: 11},
	{Header: "URL", Width: 30},
}

// DashboardModel lists the session's services with a movable cursor.
type DashboardModel struct {
	last   *tui.StateSnapshot
	cursor int
	width  int
	height int
}

func NewDashboardModel() DashboardModel { return DashboardModel{} }

func (m DashboardModel) WithSnapshot(s tui.StateSnapshot) DashboardModel {
	m.last = &s
	if n := m.serviceCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	return m
}

func (m DashboardModel) WithSize(width, height int) DashboardModel {
	m.width, m.height = width, height
	return m
}

func (m DashboardModel) serviceCount() int {
	if m.last == nil || m.last.State == nil {
		return 0
	}
	return len(m.last.State.Services)
}

// Selected returns the service under the cursor, or "".
func (m DashboardModel) Selected() string {
	if m.cursor >= m.serviceCount() {
		return ""
	}
	return m.last.State.Services[m.cursor].Name
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.serviceCount()-1 {
			m.cursor++
		}
	case "enter":
		if name := m.Selected(); name != "" {
			return m, func() tea.Msg { return tui.NavigateToServiceMsg{Name: name} }
		}
	}
	return m, nil
}

func (m DashboardModel) View() string {
	theme := styles.DefaultTheme()
	if m.last == nil {
		return theme.TitleMuted.Render("loading state...")
	}
	s := m.last
	switch {
	case s.Error != "":
		return theme.StatusDead.Render("state file unreadable: " + s.Error)
	case !s.Exists || s.State == nil:
		return theme.TitleMuted.Render("no session running in " + s.RepoRoot)
	}

	rows := make([]widgets.TableRow, 0, len(s.State.Services))
	for _, svc := range s.State.Services {
		alive := s.Alive[svc.Name]
		level := aliveLevel(alive)
		kind := svc.Runtime
		if svc.Infra {
			kind += "*"
		}
		target := svc.Container
		if svc.PID > 0 {
			target = fmt.Sprintf("pid %d", svc.PID)
		}
		cpu, mem := "-", "-"
		if st, ok := s.Stats[svc.PID]; ok && svc.PID > 0 {
			cpu = fmt.Sprintf("%.1f%%", st.CPUPercent)
			mem = fmt.Sprintf("%d MB", st.MemoryMB)
		}
		health := "-"
		if h, ok := s.Health[svc.Name]; ok {
			health = styles.HealthIcon(string(h.Status)) + " " + string(h.Status)
			if h.Status == tui.HealthUnhealthy && alive {
				level = "warn"
			}
		}
		rows = append(rows, widgets.TableRow{
			Icon:  styles.StatusIcon(alive),
			Level: level,
			Cells: []string{svc.Name, kind, target, cpu, mem, health, svc.URL},
		})
	}

	var b strings.Builder
	box := widgets.NewBox(fmt.Sprintf("Services (%d)", len(rows))).
		WithTitleRight(fmt.Sprintf("%s workflow", s.State.Workflow)).
		WithContent(widgets.NewTable(serviceColumns).WithRows(rows).WithCursor(m.cursor).WithWidth(m.width-4).Render()).
		WithSize(m.width, 0)
	b.WriteString(box.Render())
	b.WriteString("\n")
	b.WriteString(theme.TitleMuted.Render(fmt.Sprintf("%s  * infrastructure  updated %s", s.RepoRoot, s.At.Format("15:04:05"))))
	return b.String()
}
