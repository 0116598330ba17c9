// Package ui renders one-line colored console output for workflows.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
	"github.com/rs/zerolog/log"
)

// Reporter writes human-facing status lines. Structured logs go through
// zerolog; this is what the operator watches.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer

	// ProgressEvery prints a waiting line every N failed attempts.
	ProgressEvery int

	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	header  lipgloss.Style
	key     lipgloss.Style
	dim     lipgloss.Style
}

func New(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	theme := styles.DefaultStyles
	r := lipgloss.NewRenderer(out)
	return &Reporter{
		out:           out,
		ProgressEvery: 15,
		success:       r.NewStyle().Foreground(theme.Success),
		failure:       r.NewStyle().Foreground(theme.Error).Bold(true),
		warning:       r.NewStyle().Foreground(theme.Warning),
		info:          r.NewStyle().Foreground(theme.Secondary),
		header:        r.NewStyle().Foreground(theme.Primary).Bold(true),
		key:           r.NewStyle().Foreground(theme.TextDim),
		dim:           r.NewStyle().Foreground(theme.Muted),
	}
}

func (r *Reporter) line(style lipgloss.Style, icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, style.Render(icon+" "+msg))
}

func (r *Reporter) Success(format string, args ...any) {
	r.line(r.success, styles.IconSuccess, format, args...)
}

func (r *Reporter) Error(format string, args ...any) {
	r.line(r.failure, styles.IconError, format, args...)
}

func (r *Reporter) Warning(format string, args ...any) {
	r.line(r.warning, styles.IconWarning, format, args...)
}

func (r *Reporter) Info(format string, args ...any) {
	r.line(r.info, styles.IconInfo, format, args...)
}

func (r *Reporter) Step(format string, args ...any) {
	r.line(r.info, styles.IconRunning, format, args...)
}

func (r *Reporter) Header(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bar := strings.Repeat("─", lipgloss.Width(title)+4)
	_, _ = fmt.Fprintf(r.out, "\n%s\n%s\n", r.header.Render("  "+title), r.dim.Render(bar))
}

func (r *Reporter) KeyValue(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.key.Render(key+":"), value)
}

func (r *Reporter) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.dim).
		Headers(headers...).
		Rows(rows...)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, t.Render())
}

// Diagnose prints the one-line explanation of a failure.
func (r *Reporter) Diagnose(err error) {
	if err == nil {
		return
	}
	r.Error("%s", strings.SplitN(err.Error(), "\n", 2)[0])
}

// Progress is a readiness.Poller progress callback.
func (r *Reporter) Progress(p readiness.Progress) {
	if p.Attempt%10 == 0 {
		log.Debug().
			Str("service", p.Service).
			Int("attempt", p.Attempt).
			Dur("elapsed", p.Elapsed).
			Str("last", p.Last.String()).
			Msg("still waiting")
	}
	every := r.ProgressEvery
	if every <= 0 {
		every = 15
	}
	if p.Attempt%every != 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, r.dim.Render(fmt.Sprintf("  %s waiting for %s... attempt %d/%d (%ds) last: %s",
		styles.IconPending, p.Service, p.Attempt, p.MaxAttempts, int(p.Elapsed.Seconds()), p.Last.String())))
}

// Outcome reports how a readiness wait ended.
func (r *Reporter) Outcome(o readiness.Outcome) {
	switch {
	case o.Ready:
		r.Success("%s is ready (%d attempts, %ds)", o.Service, o.Attempts, int(o.Elapsed.Seconds()))
	case o.Err != nil:
		r.Warning("stopped waiting for %s: %v", o.Service, o.Err)
	default:
		r.Warning("%s did not become ready after %d attempts (last: %s)", o.Service, o.Attempts, o.Last.String())
	}
}
