package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
	"github.com/go-go-golems/stackup/pkg/tui/widgets"
)

const (
	serviceTailLines = 200
	serviceTailBytes = 1 << 20
)

type logTickMsg struct{}

// ServiceModel shows one service's record, its exit information once it has
// died, and a followed tail of its log.
type ServiceModel struct {
	width  int
	height int

	last *tui.StateSnapshot
	name string

	follow    bool
	tickEvery time.Duration
	lines     []string
	logErr    string
	exitInfo  *state.ExitInfo

	vp viewport.Model
}

func NewServiceModel() ServiceModel {
	return ServiceModel{
		follow:    true,
		tickEvery: 500 * time.Millisecond,
		vp:        viewport.New(0, 0),
	}
}

func (m ServiceModel) WithSize(width, height int) ServiceModel {
	m.width, m.height = width, height
	return m.resizeViewport()
}

func (m ServiceModel) WithSnapshot(s tui.StateSnapshot) ServiceModel {
	m.last = &s
	return m.reload()
}

// WithService switches to name and loads its log tail.
func (m ServiceModel) WithService(name string) ServiceModel {
	m.name = name
	m.follow = true
	m.lines, m.logErr, m.exitInfo = nil, "", nil
	return m.reload().resizeViewport()
}

func (m ServiceModel) Name() string { return m.name }

// Tick starts the log refresh loop.
func (m ServiceModel) Tick() tea.Cmd {
	return tea.Tick(m.tickEvery, func(time.Time) tea.Msg { return logTickMsg{} })
}

func (m ServiceModel) Update(msg tea.Msg) (ServiceModel, tea.Cmd) {
	switch v := msg.(type) {
	case logTickMsg:
		if m.name == "" {
			return m, nil
		}
		return m.reload(), m.Tick()
	case tea.KeyMsg:
		switch v.String() {
		case "esc", "backspace":
			return m, func() tea.Msg { return tui.NavigateBackMsg{} }
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m ServiceModel) record() *state.ServiceRecord {
	if m.last == nil {
		return nil
	}
	return m.last.Service(m.name)
}

// reload refreshes the exit info and the log tail from disk.
func (m ServiceModel) reload() ServiceModel {
	rec := m.record()
	if rec == nil {
		return m
	}
	if rec.ExitInfo != "" && m.exitInfo == nil && !m.last.Alive[m.name] {
		if info, err := state.ReadExitInfo(rec.ExitInfo); err == nil {
			m.exitInfo = info
		}
	}
	if rec.LogPath == "" {
		m.logErr = "no log file (container output goes to docker logs)"
		m.vp.SetContent("")
		return m
	}
	lines, err := state.TailLines(rec.LogPath, serviceTailLines, serviceTailBytes)
	if err != nil {
		m.logErr = err.Error()
		return m
	}
	m.lines, m.logErr = lines, ""
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
	return m
}

func (m ServiceModel) resizeViewport() ServiceModel {
	m.vp.Width = max(0, m.width-2)
	m.vp.Height = max(3, m.height-len(m.infoLines())-4)
	if m.follow {
		m.vp.GotoBottom()
	}
	return m
}

func (m ServiceModel) infoLines() []string {
	theme := styles.DefaultTheme()
	rec := m.record()
	if rec == nil {
		return []string{theme.TitleMuted.Render(fmt.Sprintf("service %q is not in the session", m.name))}
	}
	alive := m.last.Alive[m.name]
	status := theme.LevelStyle(aliveLevel(alive)).Render(styles.StatusIcon(alive))
	lines := []string{
		fmt.Sprintf("%s %s  %s", status, theme.Title.Render(rec.Name), theme.TitleMuted.Render(rec.Runtime)),
	}
	switch {
	case rec.PID > 0:
		line := fmt.Sprintf("pid %d", rec.PID)
		if st, ok := m.last.Stats[rec.PID]; ok {
			line += fmt.Sprintf("  %s  cpu %.1f%%  mem %d MB  threads %d", st.State, st.CPUPercent, st.MemoryMB, st.Threads)
		}
		lines = append(lines, line)
	case rec.Container != "":
		lines = append(lines, "container "+rec.Container)
	}
	if len(rec.Command) > 0 {
		lines = append(lines, theme.TitleMuted.Render("$ "+strings.Join(rec.Command, " ")))
	}
	if rec.URL != "" {
		lines = append(lines, "url "+rec.URL)
	}
	if !rec.StartedAt.IsZero() {
		lines = append(lines, "started "+rec.StartedAt.Format("15:04:05")+" ("+widgets.FormatDuration(time.Since(rec.StartedAt))+" ago)")
	}
	if h, ok := m.last.Health[m.name]; ok {
		lines = append(lines, fmt.Sprintf("health %s %s: %s", h.Status, h.Endpoint, h.Detail))
	}
	if m.exitInfo != nil {
		lines = append(lines, theme.StatusDead.Render("exited: "+m.exitInfo.Summary()))
		for _, l := range m.exitInfo.OutputTail {
			lines = append(lines, theme.TitleMuted.Render("  "+l))
		}
	}
	return lines
}

func (m ServiceModel) View() string {
	theme := styles.DefaultTheme()
	sections := []string{strings.Join(m.infoLines(), "\n")}

	content := m.vp.View()
	if m.logErr != "" {
		content = theme.TitleMuted.Render(m.logErr)
	}
	follow := "off"
	if m.follow {
		follow = "on"
	}
	box := widgets.NewBox(fmt.Sprintf("Log (%d lines)", len(m.lines))).
		WithTitleRight(fmt.Sprintf("[f] follow %s  [esc] back", follow)).
		WithContent(content).
		WithSize(m.width, m.vp.Height+3)
	sections = append(sections, box.Render())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func aliveLevel(alive bool) string {
	if alive {
		return "ok"
	}
	return "down"
}
