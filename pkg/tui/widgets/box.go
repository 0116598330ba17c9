package widgets

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
)

// Box is a rounded panel whose first line carries a title and, flush right,
// a hint such as the panel's keybindings.
type Box struct {
	Title   string
	Hint    string
	Content string
	Width   int
	Height  int
	theme   styles.Theme
}

func NewBox(title string) Box {
	return Box{Title: title, theme: styles.DefaultTheme()}
}

func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

func (b Box) WithTitleRight(hint string) Box {
	b.Hint = hint
	return b
}

// WithSize fixes the outer dimensions. Zero leaves a dimension to the content.
func (b Box) WithSize(width, height int) Box {
	b.Width, b.Height = width, height
	return b
}

func (b Box) titleLine(inner int) string {
	if b.Title == "" && b.Hint == "" {
		return ""
	}
	left := b.theme.Title.Render(b.Title)
	right := b.theme.TitleMuted.Render(b.Hint)
	gap := max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + lipgloss.NewStyle().Width(gap).Render("") + right
}

func (b Box) Render() string {
	inner := max(b.Width-2, 0)
	body := b.Content
	title := b.titleLine(inner)
	if title != "" {
		body = title + "\n" + body
	}

	style := b.theme.Border
	if b.Width > 0 {
		style = style.Width(inner)
	}
	if b.Height > 0 {
		rows := b.Height - 2
		if title != "" {
			rows--
		}
		style = style.Height(max(rows, 0))
	}
	return style.Render(body)
}
