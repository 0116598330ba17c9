package supervise

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/metrics"
	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Options struct {
	RepoRoot string
	// GracePeriod is how long a fresh process must survive to count as launched.
	GracePeriod time.Duration
	// ShutdownTimeout is the wait between TERM and KILL.
	ShutdownTimeout time.Duration

	Runtime container.Runtime
	Compose *container.Compose

	// Stdout and Stderr receive inherited output.
	Stdout io.Writer
	Stderr io.Writer

	Clock   readiness.Clock
	Metrics metrics.Collector
}

// LaunchError reports a service that did not survive its launch.
type LaunchError struct {
	Service string
	Reason  string
	Exit    *state.ExitInfo
	Err     error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("service %s failed to start: %s", e.Service, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

type Supervisor struct {
	opts    Options
	reg     *Registry
	clock   readiness.Clock
	metrics metrics.Collector
}

func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 3 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	clk := opts.Clock
	if clk == nil {
		clk = readiness.RealClock
	}
	return &Supervisor{opts: opts, reg: &Registry{}, clock: clk, metrics: metrics.OrNoop(opts.Metrics)}
}

func (s *Supervisor) Registry() *Registry { return s.reg }

// Records returns the persisted form of every registered service.
func (s *Supervisor) Records() []state.ServiceRecord {
	procs := s.reg.Snapshot()
	out := make([]state.ServiceRecord, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Record())
	}
	return out
}

// Launch starts svc and registers it for shutdown. A process is registered as
// soon as it has a PID so that an interrupt during the grace period still
// reaches it; it is dropped again if it dies before the grace period ends.
func (s *Supervisor) Launch(ctx context.Context, svc engine.ServiceSpec) (*Process, error) {
	var (
		p   *Process
		err error
	)
	if svc.IsContainer() {
		p, err = s.launchContainer(ctx, svc)
	} else {
		p, err = s.launchProcess(ctx, svc)
	}
	s.metrics.ServiceLaunched(svc.Name, string(runtimeOf(svc)), err)
	s.metrics.Supervised(s.reg.Len())
	return p, err
}

func runtimeOf(svc engine.ServiceSpec) engine.RuntimeKind {
	if svc.Runtime == "" {
		return engine.RuntimeProcess
	}
	return svc.Runtime
}

func (s *Supervisor) resolveCwd(svc engine.ServiceSpec) string {
	switch {
	case svc.Cwd == "":
		return s.opts.RepoRoot
	case filepath.IsAbs(svc.Cwd):
		return svc.Cwd
	default:
		return filepath.Join(s.opts.RepoRoot, svc.Cwd)
	}
}

func (s *Supervisor) launchProcess(ctx context.Context, svc engine.ServiceSpec) (*Process, error) {
	if len(svc.Command) == 0 {
		return nil, errors.Errorf("service %q missing command", svc.Name)
	}
	p := newProcess(svc)
	p.Cwd = s.resolveCwd(svc)

	// #nosec G204 -- command is configured in the project config.
	cmd := exec.Command(svc.Command[0], svc.Command[1:]...)
	cmd.Dir = p.Cwd
	cmd.Env = container.OverlayEnv(os.Environ(), svc.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd = cmd

	piped := svc.Output != engine.OutputInherited || svc.ReadyMarker != ""
	var (
		readers []io.Reader
		logFile *os.File
	)
	if piped {
		if err := os.MkdirAll(state.LogsDir(s.opts.RepoRoot), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir logs dir")
		}
		now := time.Now()
		p.LogPath = filepath.Join(state.LogsDir(s.opts.RepoRoot), svc.Name+"-"+now.Format("20060102-150405")+".log")
		p.ExitPath = state.ExitInfoPath(s.opts.RepoRoot, svc.Name, now)
		f, err := os.OpenFile(p.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, errors.Wrap(err, "open service log")
		}
		logFile = f
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "stdout pipe")
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "stderr pipe")
		}
		readers = []io.Reader{stdout, stderr}
	} else {
		cmd.Stdout = s.opts.Stdout
		cmd.Stderr = s.opts.Stderr
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, &LaunchError{Service: svc.Name, Reason: "could not start " + svc.Command[0], Err: err}
	}
	p.PID = cmd.Process.Pid
	p.StartedAt = time.Now()
	s.reg.Add(p)
	log.Info().Str("service", svc.Name).Int("pid", p.PID).Str("cwd", p.Cwd).Msg("service started")

	var forward io.Writer
	if svc.Output == engine.OutputInherited {
		forward = s.opts.Stdout
	}
	var scanners sync.WaitGroup
	var sinkMu sync.Mutex
	for _, r := range readers {
		scanners.Add(1)
		go func(r io.Reader) {
			defer scanners.Done()
			s.pump(p, r, logFile, forward, &sinkMu)
		}(r)
	}
	go func() {
		// pipes must be drained before Wait closes them
		scanners.Wait()
		err := cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		p.finish(err)
		log.Debug().Str("service", svc.Name).Int("pid", p.PID).Str("exit", p.Exit().Summary()).Msg("service exited")
	}()

	if err := s.clock.Sleep(ctx, s.opts.GracePeriod); err != nil {
		return p, errors.Wrapf(err, "launch %s", svc.Name)
	}
	select {
	case <-p.done:
		s.reg.Remove(svc.Name)
		exit := p.Exit()
		return nil, &LaunchError{Service: svc.Name, Reason: exit.Summary(), Exit: exit}
	default:
	}
	return p, nil
}

func (s *Supervisor) pump(p *Process, r io.Reader, sink io.Writer, forward io.Writer, mu *sync.Mutex) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	marker := p.Spec.ReadyMarker
	for sc.Scan() {
		line := sc.Text()
		p.observeLine(line, marker != "" && strings.Contains(line, marker))
		mu.Lock()
		if sink != nil {
			_, _ = io.WriteString(sink, line+"\n")
		}
		if forward != nil {
			_, _ = io.WriteString(forward, line+"\n")
		}
		mu.Unlock()
		log.Trace().Str("service", p.Spec.Name).Msg(line)
	}
}

// ContainerName is the runtime name of a container service.
func ContainerName(svc engine.ServiceSpec) string {
	if svc.Container != "" {
		return svc.Container
	}
	return svc.ComposeService
}

func (s *Supervisor) launchContainer(ctx context.Context, svc engine.ServiceSpec) (*Process, error) {
	if s.opts.Runtime == nil {
		return nil, errors.Errorf("service %q needs a container runtime", svc.Name)
	}
	name := ContainerName(svc)
	p := newProcess(svc)
	p.Container = name
	p.Cwd = s.opts.RepoRoot

	running := container.IsRunning(ctx, s.opts.Runtime, name)
	switch {
	case running && !svc.Recreate:
		log.Info().Str("service", svc.Name).Str("container", name).Msg("container already running")
		p.Preexisting = true
		p.StartedAt = time.Now()
		s.reg.Add(p)
		return p, nil
	case svc.Recreate:
		// a stale container would keep serving the old build
		if err := s.opts.Runtime.Stop(ctx, name, s.opts.ShutdownTimeout); err != nil && !errors.Is(err, container.ErrNotFound) {
			log.Warn().Err(err).Str("container", name).Msg("could not stop previous container")
		}
		if err := s.opts.Runtime.Remove(ctx, name); err != nil {
			log.Warn().Err(err).Str("container", name).Msg("could not remove previous container")
		}
	}

	if s.opts.Compose == nil {
		return nil, errors.Errorf("service %q needs a compose driver", svc.Name)
	}
	target := svc.ComposeService
	if target == "" {
		target = name
	}
	if err := s.opts.Compose.Up(ctx, svc.Env, target); err != nil {
		return nil, &LaunchError{Service: svc.Name, Reason: "compose up failed", Err: err}
	}
	p.StartedAt = time.Now()

	if !container.IsRunning(ctx, s.opts.Runtime, name) {
		if err := s.clock.Sleep(ctx, s.opts.GracePeriod); err != nil {
			return nil, errors.Wrapf(err, "launch %s", svc.Name)
		}
		st, err := s.opts.Runtime.Inspect(ctx, name)
		if err != nil || !st.Running {
			return nil, &LaunchError{Service: svc.Name, Reason: "container not running: " + st.Summary(), Err: err}
		}
	}
	s.reg.Add(p)
	log.Info().Str("service", svc.Name).Str("container", name).Msg("container started")
	return p, nil
}

// Alive reports whether the service is still up.
func (s *Supervisor) Alive(ctx context.Context, p *Process) bool {
	if p.IsContainer() {
		return container.IsRunning(ctx, s.opts.Runtime, p.Container)
	}
	return !p.Exited()
}

// Terminate stops p: TERM to the process group, KILL after the shutdown
// timeout. The returned string says which signal ended it.
func (s *Supervisor) Terminate(ctx context.Context, p *Process) (string, error) {
	start := time.Now()
	how, err := s.terminate(ctx, p)
	s.reg.Remove(p.Spec.Name)
	s.metrics.ServiceTerminated(p.Spec.Name, how, time.Since(start))
	s.metrics.Supervised(s.reg.Len())
	return how, err
}

func (s *Supervisor) terminate(ctx context.Context, p *Process) (string, error) {
	if p.IsContainer() {
		if err := s.opts.Runtime.Stop(ctx, p.Container, s.opts.ShutdownTimeout); err != nil {
			if errors.Is(err, container.ErrNotFound) {
				log.Info().Str("container", p.Container).Msg("container already removed")
				return "gone", nil
			}
			return "stop", errors.Wrapf(err, "stop container %s", p.Container)
		}
		return "stop", nil
	}
	if p.Exited() {
		return "gone", nil
	}

	signalGroup(p.PID, syscall.SIGTERM)
	t := time.NewTimer(s.opts.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-p.done:
		return "term", nil
	case <-t.C:
	case <-ctx.Done():
	}

	log.Warn().Str("service", p.Spec.Name).Int("pid", p.PID).Msg("service ignored TERM, sending KILL")
	signalGroup(p.PID, syscall.SIGKILL)
	select {
	case <-p.done:
		return "kill", nil
	case <-time.After(2 * time.Second):
		return "kill", errors.Errorf("service %s (pid %d) survived KILL", p.Spec.Name, p.PID)
	}
}

func signalGroup(pid int, sig syscall.Signal) {
	if pid <= 0 {
		return
	}
	if pgid, err := syscall.Getpgid(pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = syscall.Kill(pid, sig)
}
