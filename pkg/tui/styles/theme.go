package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette and base styles shared by the dashboard and
// the command-line reporter.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color

	Border        lipgloss.Style
	Title         lipgloss.Style
	TitleMuted    lipgloss.Style
	Selected      lipgloss.Style
	Keybind       lipgloss.Style
	KeybindKey    lipgloss.Style
	StatusRunning lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusDead    lipgloss.Style
	StatusPending lipgloss.Style
}

func DefaultTheme() Theme {
	primary := lipgloss.Color("#2563EB")
	secondary := lipgloss.Color("#06B6D4")
	success := lipgloss.Color("#22C55E")
	warning := lipgloss.Color("#EAB308")
	errorC := lipgloss.Color("#EF4444")
	muted := lipgloss.Color("#6B7280")
	text := lipgloss.Color("#F9FAFB")
	textDim := lipgloss.Color("#9CA3AF")

	return Theme{
		Primary:   primary,
		Secondary: secondary,
		Success:   success,
		Warning:   warning,
		Error:     errorC,
		Muted:     muted,
		Text:      text,
		TextDim:   textDim,

		Border:        lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted),
		Title:         lipgloss.NewStyle().Bold(true).Foreground(text),
		TitleMuted:    lipgloss.NewStyle().Foreground(textDim),
		Selected:      lipgloss.NewStyle().Bold(true).Foreground(text).Background(lipgloss.Color("#374151")),
		Keybind:       lipgloss.NewStyle().Foreground(textDim),
		KeybindKey:    lipgloss.NewStyle().Bold(true).Foreground(secondary),
		StatusRunning: lipgloss.NewStyle().Foreground(success),
		StatusWarn:    lipgloss.NewStyle().Foreground(warning),
		StatusDead:    lipgloss.NewStyle().Foreground(errorC),
		StatusPending: lipgloss.NewStyle().Foreground(muted),
	}
}

// LevelStyle colors text by display level.
func (t Theme) LevelStyle(level string) lipgloss.Style {
	switch level {
	case "ok":
		return t.StatusRunning
	case "warn":
		return t.StatusWarn
	case "pending":
		return t.StatusPending
	default:
		return t.StatusDead
	}
}

// DefaultStyles returns the default theme for convenience.
var DefaultStyles = DefaultTheme()
