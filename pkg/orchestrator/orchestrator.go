// Package orchestrator sequences prerequisite checks, environment preparation,
// infrastructure, migrations and app services into workflows, and owns the
// shutdown of everything it launched.
package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/metrics"
	"github.com/go-go-golems/stackup/pkg/ports"
	"github.com/go-go-golems/stackup/pkg/prepare"
	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/go-go-golems/stackup/pkg/supervise"
	"github.com/go-go-golems/stackup/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	ReclaimPorts bool
	Rebuild      bool
	// Force stops processes left behind by a previous session.
	Force        bool
	NoBrowser    bool
	StopInfra    bool
	ForceMigrate bool
	DryRun       bool
}

type Options struct {
	RepoRoot string
	Config   *config.File
	Env      config.Env
	Flags    Flags

	Reporter *ui.Reporter
	// Runtime is nil when the container daemon could not be reached.
	Runtime  container.Runtime
	Compose  *container.Compose
	Prober   *ports.Prober
	Preparer *prepare.Preparer
	Migrator prepare.Migrator
	Metrics  metrics.Collector
	Clock    readiness.Clock

	// RunTool runs toolchain probes such as `dotnet --version`.
	RunTool     prepare.Runner
	OpenBrowser func(url string) error

	GracePeriod     time.Duration
	ShutdownTimeout time.Duration
	MonitorInterval time.Duration
	Stdout          io.Writer
}

// RunState is computed once per invocation during PREPARING_ENV.
type RunState struct {
	FirstRun         bool
	OccupiedPorts    map[int]bool
	MigrationsNeeded bool
}

type Termination struct {
	Service string
	How     string
	Err     error
}

// Orchestrator is the per-invocation context: everything a workflow touches
// hangs off it.
type Orchestrator struct {
	opts    Options
	cfg     *config.File
	report  *ui.Reporter
	machine *Machine
	sup     *supervise.Supervisor
	poller  *readiness.Poller
	prober  *ports.Prober
	prep    *prepare.Preparer
	metrics metrics.Collector
	clock   readiness.Clock

	wf           Workflow
	started      time.Time
	runState     RunState
	containersOK bool
	outcomes     map[string]readiness.Outcome
	terminations []Termination
	wroteState   bool

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("missing config")
	}
	if opts.RepoRoot == "" {
		return nil, errors.New("missing repo root")
	}
	if opts.Reporter == nil {
		opts.Reporter = ui.New(opts.Stdout)
	}
	if opts.Prober == nil {
		opts.Prober = ports.New(ports.Options{})
	}
	if opts.Preparer == nil {
		opts.Preparer = NewPreparer(opts.Config, opts.RepoRoot)
	}
	if opts.Migrator == nil {
		opts.Migrator = MigratorFor(opts.Config, opts.RepoRoot)
	}
	if opts.Clock == nil {
		opts.Clock = readiness.RealClock
	}
	if opts.RunTool == nil {
		opts.RunTool = prepare.ExecRunner
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = OpenBrowser
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 5 * time.Second
	}
	m := metrics.OrNoop(opts.Metrics)

	o := &Orchestrator{
		opts:     opts,
		cfg:      opts.Config,
		report:   opts.Reporter,
		machine:  NewMachine(),
		prober:   opts.Prober,
		prep:     opts.Preparer,
		metrics:  m,
		clock:    opts.Clock,
		outcomes: map[string]readiness.Outcome{},
		started:  time.Now(),
	}
	o.sup = supervise.New(supervise.Options{
		RepoRoot:        opts.RepoRoot,
		GracePeriod:     opts.GracePeriod,
		ShutdownTimeout: opts.ShutdownTimeout,
		Runtime:         opts.Runtime,
		Compose:         opts.Compose,
		Stdout:          opts.Stdout,
		Stderr:          opts.Stdout,
		Clock:           opts.Clock,
		Metrics:         m,
	})
	o.poller = &readiness.Poller{Clock: opts.Clock, Progress: func(p readiness.Progress) {
		o.metrics.ReadinessAttempt(p.Service)
		o.report.Progress(p)
	}}
	o.machine.OnEnter(func(from, to Phase) {
		o.metrics.PhaseEntered(string(from), string(to))
		o.persist()
	})
	return o, nil
}

// NewPreparer maps the config onto a Preparer rooted at repoRoot.
func NewPreparer(cfg *config.File, repoRoot string) *prepare.Preparer {
	return prepare.New(prepare.Options{
		Root:           repoRoot,
		Markers:        cfg.Prepare.Markers,
		CleanDirs:      cfg.Prepare.CleanDirs,
		CleanFiles:     cfg.Prepare.CleanFiles,
		SkipDirs:       cfg.Prepare.SkipDirs,
		CleanCommand:   cfg.Build.CleanCommand,
		MigrationDir:   cfg.Migrate.Dir,
		MigrationGlobs: cfg.Migrate.Globs,
		MarkerFile:     cfg.Migrate.Marker,
	})
}

// MigratorFor picks the migrator the config asks for, or nil when none is configured.
func MigratorFor(cfg *config.File, repoRoot string) prepare.Migrator {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(repoRoot, p)
	}
	switch cfg.Migrate.Mode {
	case "sql":
		return prepare.SQLMigrator{Dir: abs(cfg.Migrate.Dir), DatabaseURL: cfg.Migrate.DatabaseURL}
	case "", "command":
		if len(cfg.Migrate.Command) == 0 {
			return nil
		}
		dir := abs(cfg.Migrate.Cwd)
		if dir == "" {
			dir = repoRoot
		}
		return prepare.CommandMigrator{Command: cfg.Migrate.Command, Dir: dir}
	default:
		return nil
	}
}

func (o *Orchestrator) Machine() *Machine { return o.machine }

// Config is the config with environment overrides applied.
func (o *Orchestrator) Config() *config.File { return o.cfg }

func (o *Orchestrator) Supervisor() *supervise.Supervisor { return o.sup }

func (o *Orchestrator) RunState() RunState { return o.runState }

func (o *Orchestrator) Terminations() []Termination {
	return append([]Termination{}, o.terminations...)
}

func (o *Orchestrator) Outcome(service string) (readiness.Outcome, bool) {
	out, ok := o.outcomes[service]
	return out, ok
}

// Run drives wf and always finishes with Shutdown. A cancelled ctx yields
// ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context, wf Workflow) error {
	o.wf = wf
	err := o.run(ctx, wf)
	if err != nil && ctx.Err() == nil {
		o.report.Diagnose(err)
	}
	if ctx.Err() != nil {
		o.report.Warning("interrupted, shutting down")
	}
	if sdErr := o.Shutdown(); sdErr != nil {
		log.Warn().Err(sdErr).Msg("shutdown incomplete")
	}
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, wf Workflow) error {
	if o.opts.Flags.DryRun {
		o.describe(wf)
		return nil
	}
	if err := o.machine.Enter(PhaseCheckingPrereqs); err != nil {
		return err
	}
	o.report.Header("stackup " + wf.Name)
	if err := o.checkPrereqs(ctx, wf); err != nil {
		return err
	}

	if err := o.machine.Enter(PhasePreparingEnv); err != nil {
		return err
	}
	if err := o.prepareEnv(ctx, wf); err != nil {
		return err
	}
	if err := o.startInfra(ctx, wf); err != nil {
		return err
	}
	if err := o.migrate(ctx, wf); err != nil {
		return err
	}
	if err := o.startApps(ctx, wf); err != nil {
		return err
	}

	if err := o.machine.Enter(PhaseRunning); err != nil {
		return err
	}
	o.announce(wf)
	if !wf.Monitor {
		return nil
	}
	return o.monitor(ctx)
}

func (o *Orchestrator) service(name string) (engine.ServiceSpec, error) {
	svc, ok := o.cfg.Service(name)
	if !ok {
		return engine.ServiceSpec{}, errors.Errorf("unknown service %q", name)
	}
	return svc, nil
}

func (o *Orchestrator) checkPrereqs(ctx context.Context, wf Workflow) error {
	if wf.Toolchain {
		if err := o.checkToolchain(ctx); err != nil {
			return err
		}
	}
	o.containersOK = false
	if wf.Containers == ContainersNone {
		return nil
	}
	err := o.containerRuntimeReady(ctx)
	switch {
	case err == nil:
		o.containersOK = true
	case wf.Containers == ContainersRequired:
		return &PrerequisiteError{What: "container runtime", Err: err}
	default:
		o.report.Warning("container runtime unavailable, skipping infrastructure: %v", err)
	}
	return nil
}

func (o *Orchestrator) checkToolchain(ctx context.Context) error {
	for _, tool := range o.cfg.Toolchain {
		out, err := o.opts.RunTool(ctx, o.opts.RepoRoot, tool.Command)
		if err != nil {
			return &PrerequisiteError{What: tool.Name, Err: err}
		}
		o.report.Success("%s %s", tool.Name, firstLine(out))
	}
	return nil
}

func (o *Orchestrator) containerRuntimeReady(ctx context.Context) error {
	if o.opts.Runtime == nil {
		return errors.New("docker daemon not reachable")
	}
	if err := o.opts.Runtime.Available(ctx); err != nil {
		return err
	}
	if o.opts.Compose == nil {
		return errors.New("no compose command configured")
	}
	v, err := o.opts.Compose.Version(ctx)
	if err != nil {
		return err
	}
	o.report.Success("compose %s", firstLine([]byte(v)))
	return nil
}

func (o *Orchestrator) prepareEnv(ctx context.Context, wf Workflow) error {
	plan, err := o.cfg.Plan().Select(append(append([]string{}, wf.Infra...), wf.Apps...)...)
	if err != nil {
		return err
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	o.runState = RunState{
		FirstRun:      o.prep.IsFirstRun(),
		OccupiedPorts: o.prober.Snapshot(ctx, plan.Ports()),
	}
	if wf.Migrate {
		o.runState.MigrationsNeeded = o.prep.MigrationsNeeded()
	}
	log.Info().
		Bool("first_run", o.runState.FirstRun).
		Bool("migrations_needed", o.runState.MigrationsNeeded).
		Msg("run state")

	reclaim := o.opts.Flags.ReclaimPorts || o.cfg.Prepare.ReclaimPorts
	for _, svc := range plan.Services {
		if !o.runState.OccupiedPorts[svc.Port] {
			continue
		}
		if svc.IsContainer() {
			o.report.Info("port %d (%s) is in use, the container may already be running", svc.Port, svc.Name)
			continue
		}
		if !reclaim {
			o.report.Warning("port %d for %s is already in use", svc.Port, svc.Name)
			continue
		}
		pids, err := o.prober.Reclaim(ctx, svc.Port)
		if err != nil {
			o.report.Warning("could not reclaim port %d: %v", svc.Port, err)
			continue
		}
		o.report.Warning("reclaimed port %d from pids %v", svc.Port, pids)
	}

	o.checkPreviousSession(ctx)

	if wf.Prepare == PrepareFirstRun && (o.runState.FirstRun || o.opts.Flags.Rebuild) {
		if o.runState.FirstRun {
			o.report.Step("first run detected, cleaning and building")
		} else {
			o.report.Step("rebuilding")
		}
		return o.cleanAndBuild(ctx)
	}
	return nil
}

func (o *Orchestrator) checkPreviousSession(ctx context.Context) {
	prev, err := state.Load(o.opts.RepoRoot)
	if err != nil {
		return
	}
	var live []state.ServiceRecord
	for _, rec := range prev.Services {
		if rec.PID > 0 && state.ProcessAlive(rec.PID) {
			live = append(live, rec)
		}
	}
	if len(live) == 0 {
		return
	}
	if !o.opts.Flags.Force {
		o.report.Warning("a previous %s session still has %d live processes (use --force to stop them)", prev.Workflow, len(live))
		return
	}
	for _, rec := range live {
		if err := o.sup.StopRecorded(ctx, rec); err != nil {
			o.report.Warning("could not stop %s from the previous session: %v", rec.Name, err)
			continue
		}
		o.report.Info("stopped %s (pid %d) from the previous session", rec.Name, rec.PID)
	}
}

func (o *Orchestrator) cleanAndBuild(ctx context.Context) error {
	rep := o.prep.Clean(ctx)
	if rep.CommandErr != nil {
		o.report.Warning("clean command failed: %v", rep.CommandErr)
	}
	for _, f := range rep.Failures {
		o.report.Warning("could not remove %s: %v", f.Path, f.Err)
	}
	o.report.Info("removed %d build artifacts", len(rep.Removed))

	results := o.prep.RunSteps(ctx, o.cfg.Build.Steps)
	if failed := prepare.FirstFailure(results); failed != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, line := range failed.Output {
			log.Error().Str("step", failed.Name).Msg(line)
		}
		return &BuildError{Step: failed.Name, Output: failed.Output, Err: failed.Err}
	}
	for _, r := range results {
		o.report.Success("%s finished in %s", r.Name, r.Duration.Round(time.Millisecond))
	}
	return nil
}

func (o *Orchestrator) startInfra(ctx context.Context, wf Workflow) error {
	if len(wf.Infra) == 0 {
		return nil
	}
	if !o.containersOK {
		return nil
	}
	if err := o.machine.Enter(PhaseLaunchingInfra); err != nil {
		return err
	}
	for _, name := range wf.Infra {
		svc, err := o.service(name)
		if err != nil {
			return err
		}
		p, err := o.sup.Launch(ctx, svc)
		if err != nil {
			return o.launchFailed(ctx, err)
		}
		if p.Preexisting {
			o.report.Info("%s is already running", name)
		} else {
			o.report.Success("%s started", name)
		}
	}
	if !wf.WaitInfra {
		return nil
	}

	if err := o.machine.Enter(PhaseWaitingInfraReady); err != nil {
		return err
	}
	for _, name := range wf.Infra {
		svc, err := o.service(name)
		if err != nil {
			return err
		}
		if _, err := o.wait(ctx, svc); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.report.Warning("cannot check %s: %v", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) launchFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (o *Orchestrator) wait(ctx context.Context, svc engine.ServiceSpec) (readiness.Outcome, error) {
	deps := readiness.Deps{
		HTTPTimeout: o.opts.Env.RequestTimeout,
		Runtime:     o.opts.Runtime,
		RepoRoot:    o.opts.RepoRoot,
		Markers: func(name string) <-chan struct{} {
			if p := o.sup.Registry().Get(name); p != nil {
				return p.MarkerSeen()
			}
			return nil
		},
	}
	out, err := o.poller.WaitService(ctx, svc, deps, 0)
	if err != nil {
		return out, err
	}
	o.outcomes[svc.Name] = out
	if out.Err != nil {
		return out, out.Err
	}
	o.metrics.ReadinessOutcome(svc.Name, out.Ready, out.Elapsed)
	o.report.Outcome(out)
	return out, nil
}

func (o *Orchestrator) migrate(ctx context.Context, wf Workflow) error {
	if !wf.Migrate || o.opts.Migrator == nil {
		return nil
	}
	if !o.runState.FirstRun && !o.runState.MigrationsNeeded && !o.opts.Flags.ForceMigrate {
		o.report.Info("migrations are up to date")
		return nil
	}
	if wf.Containers != ContainersNone && !o.containersOK {
		o.report.Warning("skipping migrations, the database is not running")
		return nil
	}
	if err := o.machine.Enter(PhaseApplyingMigrations); err != nil {
		return err
	}
	if err := o.prep.ApplyMigrations(ctx, o.opts.Migrator); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.report.Warning("migrations failed, continuing: %v", err)
		return nil
	}
	o.report.Success("migrations applied")
	return nil
}

func (o *Orchestrator) startApps(ctx context.Context, wf Workflow) error {
	for _, name := range wf.Apps {
		svc, err := o.service(name)
		if err != nil {
			return err
		}
		if svc.IsContainer() && !o.containersOK {
			o.report.Warning("skipping %s, the container runtime is unavailable", name)
			continue
		}
		if err := o.machine.Enter(PhaseLaunchingAppServices); err != nil {
			return err
		}
		p, err := o.sup.Launch(ctx, svc)
		if err != nil {
			return o.launchFailed(ctx, err)
		}
		if p.IsContainer() {
			o.report.Success("%s started (container %s)", name, p.Container)
		} else {
			o.report.Success("%s started (pid %d)", name, p.PID)
		}

		if err := o.machine.Enter(PhaseWaitingAppReady); err != nil {
			return err
		}
		out, err := o.wait(ctx, svc)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			o.report.Warning("cannot check %s: %v", name, err)
			continue
		}
		if out.Ready {
			continue
		}
		policy := svc.OnTimeout
		if wf.AppTimeout != "" {
			policy = wf.AppTimeout
		}
		switch policy {
		case engine.OnTimeoutFatal:
			return &ReadinessError{Outcome: out}
		case engine.OnTimeoutFatalIfDead:
			if !o.sup.Alive(ctx, p) {
				return &ReadinessError{Outcome: out, Exit: p.Exit()}
			}
			o.report.Warning("%s is still running, continuing", name)
		default:
			o.report.Warning("continuing without confirmed readiness of %s", name)
		}
	}
	return nil
}

func (o *Orchestrator) announce(wf Workflow) {
	o.report.Header("stack is up")
	if len(wf.Infra) > 0 && o.containersOK {
		_ = o.InfraStatus(context.Background())
	}
	for _, name := range append(append([]string{}, wf.Infra...), wf.Apps...) {
		svc, err := o.service(name)
		if err != nil || svc.OpenURL() == "" {
			continue
		}
		o.report.KeyValue(name, svc.OpenURL())
	}
	if wf.OpenBrowser && !o.opts.Flags.NoBrowser {
		for i := len(wf.Apps) - 1; i >= 0; i-- {
			svc, err := o.service(wf.Apps[i])
			if err != nil || svc.OpenURL() == "" || !o.outcomes[svc.Name].Ready {
				continue
			}
			if err := o.opts.OpenBrowser(svc.OpenURL()); err != nil {
				log.Debug().Err(err).Str("url", svc.OpenURL()).Msg("could not open browser")
			}
			break
		}
	}
	if wf.Monitor {
		o.report.Info("press Ctrl+C to stop")
	}
}

func (o *Orchestrator) monitor(ctx context.Context) error {
	for {
		if err := o.clock.Sleep(ctx, o.opts.MonitorInterval); err != nil {
			return err
		}
		changed := false
		for _, p := range o.sup.Registry().Snapshot() {
			if o.sup.Alive(ctx, p) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			changed = true
			o.reportExit(p)
			o.sup.Registry().Remove(p.Spec.Name)
		}
		if changed {
			o.metrics.Supervised(o.sup.Registry().Len())
			o.persist()
		}
		if o.sup.Registry().Len() == 0 {
			o.report.Info("all services have exited")
			return nil
		}
	}
}

func (o *Orchestrator) reportExit(p *supervise.Process) {
	if p.IsContainer() {
		o.report.Warning("%s container is no longer running", p.Spec.Name)
		return
	}
	summary := "exited"
	if exit := p.Exit(); exit != nil {
		summary = exit.Summary()
	}
	o.report.Warning("%s %s", p.Spec.Name, summary)
	if p.LogPath == "" {
		return
	}
	lines, err := state.TailLines(p.LogPath, 5, 0)
	if err != nil {
		return
	}
	for _, line := range lines {
		o.report.KeyValue("  "+p.Spec.Name, line)
	}
}

func (o *Orchestrator) keepInfra() bool {
	return o.wf.KeepInfra && !o.opts.Flags.StopInfra
}

// persist mirrors the session into .stackup/state.json once something was launched.
func (o *Orchestrator) persist() {
	if o.opts.Flags.DryRun {
		return
	}
	phase := o.machine.Current()
	if phaseOrder[phase] < phaseOrder[PhaseLaunchingInfra] || phase == PhaseTerminated {
		return
	}
	if !o.wroteState && o.sup.Registry().Len() == 0 {
		return
	}
	st := &state.State{
		RepoRoot:  o.opts.RepoRoot,
		Workflow:  o.wf.Name,
		Phase:     string(phase),
		PID:       os.Getpid(),
		KeepInfra: o.keepInfra(),
		CreatedAt: o.started,
	}
	for _, rec := range o.sup.Records() {
		if out, ok := o.outcomes[rec.Name]; ok {
			rec.Ready = out.Ready
			rec.Attempts = out.Attempts
		}
		st.Services = append(st.Services, rec)
	}
	if err := state.Save(o.opts.RepoRoot, st); err != nil {
		log.Warn().Err(err).Msg("could not save session state")
		return
	}
	o.wroteState = true
}

// Shutdown stops everything registered, in launch order. It runs once; later
// calls return the first result.
func (o *Orchestrator) Shutdown() error {
	o.shutdownOnce.Do(func() { o.shutdownErr = o.shutdown() })
	return o.shutdownErr
}

func (o *Orchestrator) shutdown() error {
	if o.machine.CanEnter(PhaseShuttingDown) {
		_ = o.machine.Enter(PhaseShuttingDown)
	}
	procs := o.sup.Registry().Snapshot()
	keep := o.keepInfra()

	var failed []string
	for _, p := range procs {
		name := p.Spec.Name
		if p.IsContainer() && keep {
			o.report.Info("leaving %s running", name)
			o.sup.Registry().Remove(name)
			continue
		}
		how, err := o.sup.Terminate(context.Background(), p)
		o.terminations = append(o.terminations, Termination{Service: name, How: how, Err: err})
		if err != nil {
			o.report.Error("could not stop %s: %v", name, err)
			failed = append(failed, name)
			continue
		}
		o.report.Success("%s stopped (%s)", name, how)
	}

	if o.wroteState {
		if err := state.Remove(o.opts.RepoRoot); err != nil {
			log.Warn().Err(err).Msg("could not remove session state")
		}
	}
	if o.machine.CanEnter(PhaseTerminated) {
		_ = o.machine.Enter(PhaseTerminated)
	}
	if len(failed) > 0 {
		return errors.Errorf("could not stop %s", strings.Join(failed, ", "))
	}
	return nil
}

func (o *Orchestrator) describe(wf Workflow) {
	o.report.Header("stackup " + wf.Name + " (dry run)")
	o.report.KeyValue("toolchain check", yesNo(wf.Toolchain))
	o.report.KeyValue("first-run build", yesNo(wf.Prepare == PrepareFirstRun))
	o.report.KeyValue("infra", strings.Join(wf.Infra, ", "))
	o.report.KeyValue("migrations", yesNo(wf.Migrate))
	o.report.KeyValue("apps", strings.Join(wf.Apps, " -> "))
	o.report.KeyValue("keep infra", yesNo(wf.KeepInfra && !o.opts.Flags.StopInfra))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
