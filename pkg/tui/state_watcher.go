package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/proc"
	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 500 * time.Millisecond

// StateWatcher polls the session state file and publishes snapshots, exits and
// phase changes on the bus. It never writes the state file.
type StateWatcher struct {
	RepoRoot string
	Interval time.Duration
	Pub      message.Publisher
	// Runtime is used for container liveness. Containers are reported dead
	// when it is nil.
	Runtime container.Runtime

	lastAlive  map[string]bool
	lastPhase  string
	cpuTracker *proc.CPUTracker
}

func (w *StateWatcher) Run(ctx context.Context) error {
	if w.RepoRoot == "" {
		return errors.New("missing RepoRoot")
	}
	if w.Pub == nil {
		return errors.New("missing Publisher")
	}
	if w.Interval <= 0 {
		w.Interval = 1 * time.Second
	}
	w.cpuTracker = proc.NewCPUTracker()

	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		if err := w.Poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Poll takes one snapshot and publishes it along with any observed changes.
func (w *StateWatcher) Poll(ctx context.Context) error {
	if w.cpuTracker == nil {
		w.cpuTracker = proc.NewCPUTracker()
	}
	now := time.Now()
	snap := StateSnapshot{RepoRoot: w.RepoRoot, At: now}

	st, err := state.Load(w.RepoRoot)
	if err != nil {
		w.lastAlive, w.lastPhase = nil, ""
		if _, statErr := os.Stat(state.StatePath(w.RepoRoot)); statErr == nil {
			snap.Exists = true
			snap.Error = err.Error()
		}
		return w.publish(DomainTypeStateSnapshot, snap)
	}
	snap.Exists = true
	snap.State = st

	if st.Phase != w.lastPhase {
		if err := w.publish(DomainTypePhaseChanged, PhaseChanged{From: w.lastPhase, To: st.Phase, When: now}); err != nil {
			return err
		}
		w.lastPhase = st.Phase
	}

	alive := make(map[string]bool, len(st.Services))
	var pids []int
	for _, svc := range st.Services {
		alive[svc.Name] = w.alive(ctx, svc)
		if alive[svc.Name] && svc.PID > 0 {
			pids = append(pids, svc.PID)
		}
	}
	for _, svc := range st.Services {
		if w.lastAlive[svc.Name] && !alive[svc.Name] {
			ev := ServiceExitObserved{Name: svc.Name, PID: svc.PID, Container: svc.Container, When: now, Reason: exitReason(svc)}
			if err := w.publish(DomainTypeServiceExit, ev); err != nil {
				return err
			}
		}
	}
	w.lastAlive = alive

	snap.Alive = alive
	snap.Stats = proc.ReadAllStats(pids, w.cpuTracker)
	w.cpuTracker.Forget(pids)
	snap.Health = w.checkHealth(ctx, st.Services, alive)

	return w.publish(DomainTypeStateSnapshot, snap)
}

func (w *StateWatcher) alive(ctx context.Context, svc state.ServiceRecord) bool {
	if svc.PID > 0 {
		return state.ProcessAlive(svc.PID)
	}
	if svc.Container != "" {
		return container.IsRunning(ctx, w.Runtime, svc.Container)
	}
	return false
}

func exitReason(svc state.ServiceRecord) string {
	if svc.ExitInfo != "" {
		if info, err := state.ReadExitInfo(svc.ExitInfo); err == nil {
			return info.Summary()
		}
	}
	if svc.Container != "" {
		return "container not running"
	}
	return "process not alive"
}

func (w *StateWatcher) checkHealth(ctx context.Context, services []state.ServiceRecord, alive map[string]bool) map[string]*HealthResult {
	results := map[string]*HealthResult{}
	for _, svc := range services {
		check := healthCheck(svc)
		if check == nil {
			continue
		}
		if !alive[svc.Name] {
			results[svc.Name] = &HealthResult{Status: HealthUnhealthy, Endpoint: check.String(), Detail: "not running"}
			continue
		}
		start := time.Now()
		res := check.Probe(ctx)
		hr := &HealthResult{Endpoint: check.String(), Detail: res.String(), Latency: time.Since(start).Milliseconds()}
		switch {
		case res.Ready:
			hr.Status = HealthHealthy
		case res.Err != nil || res.Status != 0:
			hr.Status = HealthUnhealthy
		default:
			hr.Status = HealthUnknown
		}
		results[svc.Name] = hr
	}
	return results
}

// healthCheck rebuilds a probe from the recorded health type. Checks that need
// the supervising process (exec, marker) are not repeated here.
func healthCheck(svc state.ServiceRecord) readiness.Check {
	switch engine.CheckKind(strings.ToLower(svc.HealthType)) {
	case engine.CheckHTTPStrict:
		if svc.HealthURL != "" {
			return readiness.StrictHTTPStatus{URL: svc.HealthURL, Timeout: healthTimeout}
		}
	case engine.CheckHTTPLenient:
		if svc.HealthURL != "" {
			return readiness.LenientHTTPOrContent{URL: svc.HealthURL, Timeout: healthTimeout}
		}
	case engine.CheckTCP:
		if svc.Port > 0 {
			return readiness.TCPReachable{Address: fmt.Sprintf("127.0.0.1:%d", svc.Port), Timeout: healthTimeout}
		}
	}
	return nil
}

func (w *StateWatcher) publish(typ string, payload any) error {
	if err := publishEnvelope(w.Pub, TopicStackEvents, typ, payload); err != nil {
		log.Debug().Err(err).Str("type", typ).Msg("watcher publish failed")
		return err
	}
	return nil
}
