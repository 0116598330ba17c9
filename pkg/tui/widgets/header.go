package widgets

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
)

type Keybind struct {
	Key   string
	Label string
}

// Header is the title bar: name, session status and phase on the left, uptime
// on the right.
type Header struct {
	Title  string
	Status string
	Level  string
	Phase  string
	Uptime time.Duration
	Width  int
	theme  styles.Theme
}

func NewHeader(title string) Header {
	return Header{Title: title, theme: styles.DefaultTheme()}
}

// WithStatus sets the status text and its display level.
func (h Header) WithStatus(status, level string) Header {
	h.Status, h.Level = status, level
	return h
}

func (h Header) WithPhase(phase string) Header {
	h.Phase = phase
	return h
}

func (h Header) WithUptime(d time.Duration) Header {
	h.Uptime = d
	return h
}

func (h Header) WithWidth(w int) Header {
	h.Width = w
	return h
}

func (h Header) Render() string {
	theme := h.theme

	left := lipgloss.NewStyle().Bold(true).Foreground(theme.Text).Background(theme.Primary).Padding(0, 1).Render(h.Title)
	if h.Status != "" {
		status := theme.LevelStyle(h.Level).Render(styles.IconSystem) + " " + theme.Title.Render(h.Status)
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", status)
	}
	if h.Phase != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", theme.TitleMuted.Render(h.Phase))
	}

	right := ""
	if h.Uptime > 0 {
		right = theme.TitleMuted.Render("up " + FormatDuration(h.Uptime))
	}

	spacing := h.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacing < 1 {
		spacing = 1
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().Width(spacing).Render(""), right)
	return lipgloss.JoinVertical(lipgloss.Left, line, separator(theme, h.Width))
}

func RenderKeybinds(keybinds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(keybinds)*2)
	for i, kb := range keybinds {
		if i > 0 {
			parts = append(parts, " ")
		}
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]"), theme.Keybind.Render(" "+kb.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

// FormatDuration renders d as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
