package models

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/go-go-golems/stackup/pkg/tui/widgets"
)

type ViewID string

const (
	ViewDashboard ViewID = "dashboard"
	ViewService   ViewID = "service"
	ViewEvents    ViewID = "events"
)

// RootModel switches between the dashboard, the event log and a service's
// detail view, and frames them with a header and footer.
type RootModel struct {
	width  int
	height int

	active ViewID
	last   *tui.StateSnapshot

	dashboard DashboardModel
	service   ServiceModel
	events    EventLogModel
}

func NewRootModel() RootModel {
	return RootModel{
		active:    ViewDashboard,
		dashboard: NewDashboardModel(),
		service:   NewServiceModel(),
		events:    NewEventLogModel(),
	}
}

func (m RootModel) Init() tea.Cmd { return nil }

func (m RootModel) Active() ViewID { return m.active }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		body := max(m.height-4, 3)
		m.dashboard = m.dashboard.WithSize(m.width, body)
		m.service = m.service.WithSize(m.width, body)
		m.events = m.events.WithSize(m.width, body)
		return m, nil
	case tea.KeyMsg:
		if m.active == ViewEvents && m.events.Searching() {
			var cmd tea.Cmd
			m.events, cmd = m.events.Update(v)
			return m, cmd
		}
		switch v.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			if m.active == ViewEvents {
				m.active = ViewDashboard
			} else {
				m.active = ViewEvents
			}
			return m, nil
		}
		var cmd tea.Cmd
		switch m.active {
		case ViewService:
			m.service, cmd = m.service.Update(v)
		case ViewEvents:
			m.events, cmd = m.events.Update(v)
		default:
			m.dashboard, cmd = m.dashboard.Update(v)
		}
		return m, cmd
	case tui.NavigateToServiceMsg:
		m.active = ViewService
		m.service = m.service.WithService(v.Name)
		return m, m.service.Tick()
	case tui.NavigateBackMsg:
		m.active = ViewDashboard
		m.service = m.service.WithService("")
		return m, nil
	case tui.StateSnapshotMsg:
		snap := v.Snapshot
		m.last = &snap
		m.dashboard = m.dashboard.WithSnapshot(snap)
		m.service = m.service.WithSnapshot(snap)
		return m, nil
	case tui.EventLogAppendMsg:
		m.events = m.events.Append(v.Entry)
		return m, nil
	case logTickMsg:
		var cmd tea.Cmd
		m.service, cmd = m.service.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m RootModel) header() widgets.Header {
	h := widgets.NewHeader("stackup").WithWidth(m.width)
	switch {
	case m.last == nil:
		return h.WithStatus("loading", "pending")
	case m.last.Error != "":
		return h.WithStatus("state error", "down")
	case !m.last.Exists || m.last.State == nil:
		return h.WithStatus("stopped", "pending")
	}
	st := m.last.State
	alive := 0
	for _, up := range m.last.Alive {
		if up {
			alive++
		}
	}
	level := "ok"
	if alive < len(st.Services) {
		level = "warn"
	}
	return h.WithStatus(st.Workflow, level).
		WithPhase(st.Phase).
		WithUptime(time.Since(st.CreatedAt))
}

func (m RootModel) keybinds() []widgets.Keybind {
	switch m.active {
	case ViewService:
		return []widgets.Keybind{{Key: "esc", Label: "back"}, {Key: "f", Label: "follow"}, {Key: "↑/↓", Label: "scroll"}, {Key: "q", Label: "quit"}}
	case ViewEvents:
		return []widgets.Keybind{{Key: "tab", Label: "services"}, {Key: "/", Label: "filter"}, {Key: "c", Label: "clear"}, {Key: "q", Label: "quit"}}
	default:
		return []widgets.Keybind{{Key: "↑/↓", Label: "select"}, {Key: "enter", Label: "details"}, {Key: "tab", Label: "events"}, {Key: "q", Label: "quit"}}
	}
}

func (m RootModel) View() string {
	var body string
	switch m.active {
	case ViewService:
		body = m.service.View()
	case ViewEvents:
		body = m.events.View()
	default:
		body = m.dashboard.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header().Render(),
		body,
		widgets.NewFooter(m.keybinds()).WithWidth(m.width).Render(),
	)
}
