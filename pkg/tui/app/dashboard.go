// Package app assembles the dashboard from the bus, the watcher and the models.
package app

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/tui"
	"github.com/go-go-golems/stackup/pkg/tui/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Dashboard runs the live session view: the state watcher publishes on the
// bus, the transformer turns domain events into UI messages, and the program
// renders them until the user quits.
type Dashboard struct {
	RepoRoot  string
	Refresh   time.Duration
	Runtime   container.Runtime
	In        io.Reader
	Out       io.Writer
	AltScreen bool
}

func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus, err := tui.NewInMemoryBus()
	if err != nil {
		return err
	}
	tui.RegisterDomainToUITransformer(bus)

	opts := []tea.ProgramOption{tea.WithInput(d.In), tea.WithOutput(d.Out), tea.WithContext(ctx)}
	if d.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(models.NewRootModel(), opts...)
	tui.RegisterUIForwarder(bus, program)

	watcher := &tui.StateWatcher{RepoRoot: d.RepoRoot, Interval: d.Refresh, Pub: bus.Publisher, Runtime: d.Runtime}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return untilCanceled(bus.Run(egCtx)) })
	eg.Go(func() error {
		// gochannel drops messages published before the handlers subscribe
		select {
		case <-bus.Running():
		case <-egCtx.Done():
			return nil
		}
		return untilCanceled(watcher.Run(egCtx))
	})
	eg.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return untilCanceled(err)
	})
	return errors.Wrap(eg.Wait(), "dashboard")
}

func untilCanceled(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
