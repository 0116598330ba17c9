package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
)

type TableColumn struct {
	Header string
	Width  int
	Align  lipgloss.Position
}

// TableRow is one line of a table. Level ("ok", "warn", "down", "pending")
// colors the row icon.
type TableRow struct {
	Icon  string
	Level string
	Cells []string
}

// Table renders fixed-width columns with a header line and a cursor.
type Table struct {
	Columns []TableColumn
	Rows    []TableRow
	Cursor  int
	Width   int
	theme   styles.Theme
}

func NewTable(cols []TableColumn) Table {
	return Table{
		Columns: cols,
		Cursor:  -1,
		theme:   styles.DefaultTheme(),
	}
}

func (t Table) WithRows(rows []TableRow) Table {
	t.Rows = rows
	return t
}

// WithCursor selects a row; -1 disables selection.
func (t Table) WithCursor(idx int) Table {
	t.Cursor = idx
	return t
}

func (t Table) WithWidth(width int) Table {
	t.Width = width
	return t
}

func (t Table) Render() string {
	theme := t.theme
	if len(t.Rows) == 0 {
		return theme.TitleMuted.Render("(no services)")
	}

	header := []string{"    "}
	for _, col := range t.Columns {
		header = append(header, cellStyle(col).Inherit(theme.TitleMuted).Render(truncate(col.Header, col.Width)))
	}
	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	for i, row := range t.Rows {
		selected := i == t.Cursor
		cursor := "  "
		if selected {
			cursor = theme.KeybindKey.Render("> ")
		}
		icon := " "
		if row.Icon != "" {
			icon = theme.LevelStyle(row.Level).Render(row.Icon)
		}
		parts := []string{cursor, icon, " "}

		for j, cell := range row.Cells {
			col := TableColumn{Width: 20}
			if j < len(t.Columns) {
				col = t.Columns[j]
			}
			style := cellStyle(col).Foreground(theme.TextDim)
			if selected {
				style = style.Bold(true).Foreground(theme.Text)
			}
			parts = append(parts, style.Render(truncate(cell, col.Width)))
		}

		line := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
		if selected && t.Width > 0 {
			line = theme.Selected.Width(t.Width).Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func cellStyle(col TableColumn) lipgloss.Style {
	width := col.Width
	if width <= 0 {
		width = 20
	}
	return lipgloss.NewStyle().Width(width).Align(col.Align)
}

func truncate(s string, width int) string {
	if width <= 0 {
		width = 20
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-2]) + "… "
}
