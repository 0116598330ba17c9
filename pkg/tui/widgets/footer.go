package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
)

// Footer renders a separator and the centered keybinding hints.
type Footer struct {
	Keybinds []Keybind
	Width    int
	theme    styles.Theme
}

func NewFooter(keybinds []Keybind) Footer {
	return Footer{
		Keybinds: keybinds,
		theme:    styles.DefaultTheme(),
	}
}

func (f Footer) WithWidth(w int) Footer {
	f.Width = w
	return f
}

func (f Footer) Render() string {
	keybinds := RenderKeybinds(f.Keybinds, f.theme)
	padding := (f.Width - lipgloss.Width(keybinds)) / 2
	if padding < 0 {
		padding = 0
	}
	line := lipgloss.NewStyle().PaddingLeft(padding).Width(f.Width).Render(keybinds)
	return lipgloss.JoinVertical(lipgloss.Left, separator(f.theme, f.Width), line)
}

func separator(theme styles.Theme, width int) string {
	if width <= 0 {
		width = 80
	}
	return lipgloss.NewStyle().Foreground(theme.Muted).Render(strings.Repeat("━", width))
}
