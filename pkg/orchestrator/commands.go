package orchestrator

import (
	"context"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/supervise"
	"github.com/go-go-golems/stackup/pkg/tui/styles"
	"github.com/pkg/errors"
)

// Build checks the toolchain, then cleans and runs the build steps. Any
// failure is returned.
func (o *Orchestrator) Build(ctx context.Context) error {
	o.report.Header("stackup build")
	err := o.checkToolchain(ctx)
	if err == nil {
		err = o.cleanAndBuild(ctx)
	}
	if err != nil {
		o.report.Diagnose(err)
		return err
	}
	o.report.Success("build finished")
	return nil
}

// Migrate applies migrations unconditionally. Failures are reported as
// warnings and not returned.
func (o *Orchestrator) Migrate(ctx context.Context) {
	o.report.Header("stackup migrate")
	if o.opts.Migrator == nil {
		o.report.Warning("no migrations configured")
		return
	}
	o.report.Step("applying migrations (%s)", o.opts.Migrator.String())
	if err := o.prep.ApplyMigrations(ctx, o.opts.Migrator); err != nil {
		o.report.Warning("migrations failed: %v", err)
		return
	}
	o.report.Success("migrations applied")
}

// Clean removes build artifacts. It never fails; skipped paths are reported.
func (o *Orchestrator) Clean(ctx context.Context) {
	o.report.Header("stackup clean")
	rep := o.prep.Clean(ctx)
	if rep.CommandErr != nil {
		o.report.Warning("clean command failed: %v", rep.CommandErr)
	}
	for _, f := range rep.Failures {
		o.report.Warning("could not remove %s: %v", f.Path, f.Err)
	}
	o.report.Success("removed %d build artifacts", len(rep.Removed))
}

// InfraDown stops the compose project. Failures are reported as warnings.
func (o *Orchestrator) InfraDown(ctx context.Context) {
	o.report.Header("stackup infra-down")
	if o.opts.Compose == nil {
		o.report.Warning("no compose command configured")
		return
	}
	if err := o.opts.Compose.Down(ctx); err != nil {
		o.report.Warning("compose down failed: %v", err)
		return
	}
	o.report.Success("infrastructure stopped")
}

// ContainerStatus is one row of the infra-status table.
type ContainerStatus struct {
	Service   string
	Container string
	State     container.State
	Err       error
}

// ContainerStatuses inspects every container service in the config.
func (o *Orchestrator) ContainerStatuses(ctx context.Context) ([]ContainerStatus, error) {
	if o.opts.Runtime == nil {
		return nil, errors.New("docker daemon not reachable")
	}
	var out []ContainerStatus
	for _, svc := range o.cfg.Services {
		if svc.Runtime != engine.RuntimeContainer {
			continue
		}
		name := supervise.ContainerName(svc)
		st, err := o.opts.Runtime.Inspect(ctx, name)
		if errors.Is(err, container.ErrNotFound) {
			st, err = container.State{Name: name, Status: "not created"}, nil
		}
		out = append(out, ContainerStatus{Service: svc.Name, Container: name, State: st, Err: err})
	}
	return out, nil
}

// InfraStatus prints the container table.
func (o *Orchestrator) InfraStatus(ctx context.Context) error {
	rows, err := o.ContainerStatuses(ctx)
	if err != nil {
		o.report.Diagnose(err)
		return err
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		status := r.State.Summary()
		level := r.State.Level()
		if r.Err != nil {
			status, level = r.Err.Error(), "down"
		}
		table = append(table, []string{styles.LevelIcon(level), r.Service, r.Container, status})
	}
	o.report.Table([]string{"", "SERVICE", "CONTAINER", "STATUS"}, table)
	return nil
}
