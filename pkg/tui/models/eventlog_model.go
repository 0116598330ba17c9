package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
	"github.com/go-go-golems/stackup/pkg/tui/widgets"
)

const eventLogCapacity = 500

var levelRank = map[tui.LogLevel]int{
	tui.LogLevelDebug: 0,
	tui.LogLevelInfo:  1,
	tui.LogLevelWarn:  2,
	tui.LogLevelError: 3,
}

// EventLogModel keeps the most recent events. They can be narrowed by text
// (matching source or message) and by minimum level.
type EventLogModel struct {
	entries []tui.EventLogEntry

	width  int
	height int

	searching bool
	search    textinput.Model
	filter    string
	minLevel  tui.LogLevel

	vp viewport.Model
}

func NewEventLogModel() EventLogModel {
	search := textinput.New()
	search.Placeholder = "service or text"
	search.Prompt = "/ "
	search.CharLimit = 120
	return EventLogModel{search: search, minLevel: tui.LogLevelDebug, vp: viewport.New(0, 0)}
}

func (m EventLogModel) WithSize(width, height int) EventLogModel {
	m.width, m.height = width, height
	m.vp.Width = max(width-2, 0)
	m.vp.Height = max(height-4, 3)
	return m.render(false)
}

// Searching reports whether the filter input has focus.
func (m EventLogModel) Searching() bool { return m.searching }

func (m EventLogModel) Append(e tui.EventLogEntry) EventLogModel {
	if e.Level == "" {
		e.Level = tui.LogLevelInfo
	}
	if strings.TrimSpace(e.Source) == "" {
		e.Source = "system"
	}
	m.entries = append(m.entries, e)
	if over := len(m.entries) - eventLogCapacity; over > 0 {
		m.entries = append([]tui.EventLogEntry(nil), m.entries[over:]...)
	}
	return m.render(true)
}

func (m EventLogModel) Update(msg tea.Msg) (EventLogModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		switch key.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.searching = false
			m.search.Blur()
			m.filter = strings.TrimSpace(m.search.Value())
			return m.render(true), nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(key)
		return m, cmd
	}

	switch key.String() {
	case "/":
		m.searching = true
		m.search.SetValue(m.filter)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		return m.render(true), nil
	case "l":
		m.minLevel = nextLevel(m.minLevel)
		return m.render(true), nil
	case "c":
		m.entries = nil
		return m.render(true), nil
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(key)
	return m, cmd
}

func nextLevel(l tui.LogLevel) tui.LogLevel {
	switch l {
	case tui.LogLevelDebug:
		return tui.LogLevelInfo
	case tui.LogLevelInfo:
		return tui.LogLevelWarn
	case tui.LogLevelWarn:
		return tui.LogLevelError
	default:
		return tui.LogLevelDebug
	}
}

func (m EventLogModel) visible(e tui.EventLogEntry) bool {
	if levelRank[e.Level] < levelRank[m.minLevel] {
		return false
	}
	if m.filter == "" {
		return true
	}
	f := strings.ToLower(m.filter)
	return strings.Contains(strings.ToLower(e.Text), f) || strings.Contains(strings.ToLower(e.Source), f)
}

func renderEntry(theme styles.Theme, e tui.EventLogEntry) string {
	style := theme.TitleMuted
	switch e.Level {
	case tui.LogLevelError:
		style = theme.StatusDead
	case tui.LogLevelWarn:
		style = theme.StatusWarn
	}
	return fmt.Sprintf("%s %s %s  %s",
		style.Render(styles.LogLevelIcon(string(e.Level))),
		theme.TitleMuted.Render(e.At.Format("15:04:05")),
		theme.TitleMuted.Render("["+e.Source+"]"),
		style.Render(e.Text),
	)
}

func (m EventLogModel) render(gotoBottom bool) EventLogModel {
	theme := styles.DefaultTheme()
	var lines []string
	for _, e := range m.entries {
		if m.visible(e) {
			lines = append(lines, renderEntry(theme, e))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}

func (m EventLogModel) View() string {
	theme := styles.DefaultTheme()
	hint := fmt.Sprintf("level>=%s  [/] filter  [l] level  [c] clear", m.minLevel)
	if m.filter != "" {
		hint = fmt.Sprintf("filter=%q  %s", m.filter, hint)
	}

	content := m.vp.View()
	height := m.vp.Height + 3
	if len(m.entries) == 0 {
		content, height = theme.TitleMuted.Render("(no events yet)"), 5
	}
	box := widgets.NewBox(fmt.Sprintf("Events (%d)", len(m.entries))).
		WithTitleRight(hint).
		WithContent(content).
		WithSize(m.width, height)

	if m.searching {
		return lipgloss.JoinVertical(lipgloss.Left, m.search.View(), box.Render())
	}
	return box.Render()
}
