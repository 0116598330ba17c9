package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/proc"
	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/go-go-golems/stackup/pkg/supervise"
	"golang.org/x/sync/errgroup"
)

type Level string

const (
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
	LevelInfo Level = "info"
)

type Finding struct {
	Level  Level
	Label  string
	Detail string
}

type Section struct {
	Title    string
	Findings []Finding
}

func (s *Section) add(level Level, label, format string, args ...any) {
	s.Findings = append(s.Findings, Finding{Level: level, Label: label, Detail: fmt.Sprintf(format, args...)})
}

type DiagnosticsReport struct {
	Sections []Section
}

// Failures counts fail-level findings across all sections.
func (r DiagnosticsReport) Failures() int {
	n := 0
	for _, s := range r.Sections {
		for _, f := range s.Findings {
			if f.Level == LevelFail {
				n++
			}
		}
	}
	return n
}

// Diagnostics gathers the health of the development environment. Sections are
// collected concurrently and returned in a fixed order.
func (o *Orchestrator) Diagnostics(ctx context.Context) (DiagnosticsReport, error) {
	collectors := []func(context.Context) Section{
		o.diagToolchain,
		o.diagRuntime,
		o.diagFiles,
		o.diagContainers,
		o.diagEndpoints,
		o.diagDataStores,
		o.diagSession,
		o.diagEnvironment,
	}
	sections := make([]Section, len(collectors))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, collect := range collectors {
		eg.Go(func() error {
			sections[i] = collect(egCtx)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return DiagnosticsReport{}, err
	}
	return DiagnosticsReport{Sections: sections}, nil
}

// PrintDiagnostics renders report through the reporter.
func (o *Orchestrator) PrintDiagnostics(report DiagnosticsReport) {
	for _, s := range report.Sections {
		o.report.Header(s.Title)
		for _, f := range s.Findings {
			msg := f.Label
			if f.Detail != "" {
				msg += ": " + f.Detail
			}
			switch f.Level {
			case LevelOK:
				o.report.Success("%s", msg)
			case LevelWarn:
				o.report.Warning("%s", msg)
			case LevelFail:
				o.report.Error("%s", msg)
			default:
				o.report.Info("%s", msg)
			}
		}
	}
	if n := report.Failures(); n > 0 {
		o.report.Error("%d problems found", n)
		return
	}
	o.report.Success("no problems found")
}

func (o *Orchestrator) diagToolchain(ctx context.Context) Section {
	s := Section{Title: "toolchain"}
	for _, tool := range o.cfg.Toolchain {
		out, err := o.opts.RunTool(ctx, o.opts.RepoRoot, tool.Command)
		if err != nil {
			s.add(LevelFail, tool.Name, "%v", err)
			continue
		}
		s.add(LevelOK, tool.Name, "%s", firstLine(out))
	}
	if o.opts.Compose != nil {
		if v, err := o.opts.Compose.Version(ctx); err != nil {
			s.add(LevelWarn, "compose", "%v", err)
		} else {
			s.add(LevelOK, "compose", "%s", firstLine([]byte(v)))
		}
	}
	return s
}

func (o *Orchestrator) diagRuntime(ctx context.Context) Section {
	s := Section{Title: "container runtime"}
	if o.opts.Runtime == nil {
		s.add(LevelFail, "docker", "daemon not reachable")
		return s
	}
	info, err := o.opts.Runtime.Info(ctx)
	if err != nil {
		s.add(LevelFail, "docker", "%v", err)
		return s
	}
	s.add(LevelOK, "docker", "%s on %s", info.ServerVersion, info.OS)
	s.add(LevelInfo, "containers", "%d running of %d", info.Running, info.Containers)
	s.add(LevelInfo, "resources", "%d cpus, %d MB", info.CPUs, info.MemTotalMB)
	return s
}

func (o *Orchestrator) diagFiles(context.Context) Section {
	s := Section{Title: "critical files"}
	for _, rel := range o.cfg.Diagnostics.CriticalFiles {
		if _, err := os.Stat(filepath.Join(o.opts.RepoRoot, rel)); err != nil {
			s.add(LevelFail, rel, "missing")
			continue
		}
		s.add(LevelOK, rel, "")
	}
	return s
}

func (o *Orchestrator) diagContainers(ctx context.Context) Section {
	s := Section{Title: "containers"}
	if o.opts.Runtime == nil {
		s.add(LevelWarn, "containers", "skipped, docker daemon not reachable")
		return s
	}
	for _, svc := range o.cfg.Services {
		if svc.Runtime != engine.RuntimeContainer {
			continue
		}
		name := supervise.ContainerName(svc)
		st, err := o.opts.Runtime.Inspect(ctx, name)
		switch {
		case err != nil:
			s.add(LevelFail, name, "%v", err)
		case st.Level() == "ok":
			s.add(LevelOK, name, "%s", st.Summary())
		case st.Level() == "warn":
			s.add(LevelWarn, name, "%s", st.Summary())
		default:
			s.add(LevelFail, name, "%s", st.Summary())
		}
	}
	return s
}

// diagEndpoints probes endpoints one at a time, DELAY_BETWEEN_TESTS apart.
func (o *Orchestrator) diagEndpoints(ctx context.Context) Section {
	s := Section{Title: "endpoints"}
	client := &http.Client{Timeout: o.opts.Env.RequestTimeout}
	for i, ep := range o.endpoints() {
		if i > 0 && o.opts.Env.DelayBetweenTests > 0 {
			if err := o.clock.Sleep(ctx, o.opts.Env.DelayBetweenTests); err != nil {
				return s
			}
		}
		status, err := probeEndpoint(ctx, client, ep.URL)
		switch {
		case err != nil:
			s.add(LevelFail, ep.Name, "%s: %v", ep.URL, err)
		case status < 400:
			s.add(LevelOK, ep.Name, "%s HTTP %d", ep.URL, status)
		default:
			s.add(LevelFail, ep.Name, "%s HTTP %d", ep.URL, status)
		}
	}
	return s
}

// endpoints uses the configured list with the API health URL following API_BASE_URL.
func (o *Orchestrator) endpoints() []config.Endpoint {
	eps := append([]config.Endpoint{}, o.cfg.Diagnostics.Endpoints...)
	if !o.opts.Env.APIBaseURLSet {
		return eps
	}
	api, ok := o.cfg.Service(o.cfg.Roles.API)
	if !ok || api.HealthURL() == "" {
		return eps
	}
	for i := range eps {
		if eps[i].Name == "api health" {
			eps[i].URL = api.HealthURL()
			return eps
		}
	}
	return append([]config.Endpoint{{Name: "api health", URL: api.HealthURL()}}, eps...)
}

func probeEndpoint(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (o *Orchestrator) diagDataStores(ctx context.Context) Section {
	s := Section{Title: "data stores"}
	d := o.cfg.Diagnostics
	checks := []readiness.Check{}
	if d.RedisAddr != "" {
		checks = append(checks, readiness.RedisPing{Addr: d.RedisAddr})
	}
	if d.PostgresDSN != "" {
		checks = append(checks, readiness.PostgresPing{DSN: d.PostgresDSN})
	}
	for _, c := range checks {
		res := c.Probe(ctx)
		if res.Ready {
			s.add(LevelOK, c.String(), "%s", res.String())
			continue
		}
		s.add(LevelFail, c.String(), "%s", res.String())
	}
	return s
}

func (o *Orchestrator) diagSession(context.Context) Section {
	s := Section{Title: "session"}
	st, err := state.Load(o.opts.RepoRoot)
	if err != nil {
		s.add(LevelInfo, "state", "no running session")
		return s
	}
	s.add(LevelInfo, "workflow", "%s (%s, pid %d)", st.Workflow, st.Phase, st.PID)
	var pids []int
	for _, rec := range st.Services {
		if rec.PID > 0 {
			pids = append(pids, rec.PID)
		}
	}
	stats := proc.ReadAllStats(pids, nil)
	for _, rec := range st.Services {
		if rec.PID <= 0 {
			s.add(LevelInfo, rec.Name, "container %s", rec.Container)
			continue
		}
		ps, ok := stats[rec.PID]
		if !ok || !state.ProcessAlive(rec.PID) {
			s.add(LevelWarn, rec.Name, "pid %d is not running", rec.PID)
			continue
		}
		s.add(LevelOK, rec.Name, "pid %d %s, %d threads, %d MB", rec.PID, ps.State, ps.Threads, ps.MemoryMB)
	}
	return s
}

func (o *Orchestrator) diagEnvironment(context.Context) Section {
	s := Section{Title: "environment"}
	env := o.opts.Env.Map()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sanitized := state.SanitizeEnv(env)
	for _, k := range keys {
		v := env[k]
		switch {
		case sanitized[k] != v:
			v = state.Mask(v)
		case v == "":
			v = "(unset)"
		}
		s.add(LevelInfo, k, "%s", v)
	}
	return s
}
