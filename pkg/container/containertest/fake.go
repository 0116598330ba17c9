// Package containertest provides an in-memory container runtime for tests.
package containertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/pkg/errors"
)

type ExecFunc func(name string, cmd []string) (container.ExecResult, error)

// Runtime records calls and keeps container states in memory.
type Runtime struct {
	mu sync.Mutex

	Unavailable error
	Containers  map[string]container.State
	ExecFn      ExecFunc

	Stopped []string
	Removed []string
	Execs   []string
}

var _ container.Runtime = (*Runtime)(nil)

func New() *Runtime {
	return &Runtime{Containers: map[string]container.State{}}
}

// SetRunning marks name as running (or exited).
func (r *Runtime) SetRunning(name string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "exited"
	if running {
		status = "running"
	}
	r.Containers[name] = container.State{Name: name, Running: running, Status: status}
}

func (r *Runtime) Available(ctx context.Context) error { return r.Unavailable }

func (r *Runtime) Info(ctx context.Context) (container.Info, error) {
	if r.Unavailable != nil {
		return container.Info{}, r.Unavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	running := 0
	for _, c := range r.Containers {
		if c.Running {
			running++
		}
	}
	return container.Info{ServerVersion: "fake", Containers: len(r.Containers), Running: running}, nil
}

func (r *Runtime) Inspect(ctx context.Context, name string) (container.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.Containers[name]
	if !ok {
		return container.State{Name: name, Status: "missing"}, errors.Wrap(container.ErrNotFound, name)
	}
	return st, nil
}

func (r *Runtime) List(ctx context.Context, prefix string) ([]container.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []container.State
	for name, st := range r.Containers {
		if strings.HasPrefix(name, prefix) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *Runtime) Exec(ctx context.Context, name string, cmd []string) (container.ExecResult, error) {
	r.mu.Lock()
	r.Execs = append(r.Execs, name+": "+strings.Join(cmd, " "))
	fn := r.ExecFn
	r.mu.Unlock()
	if fn == nil {
		return container.ExecResult{ExitCode: 0}, nil
	}
	return fn(name, cmd)
}

func (r *Runtime) Stop(ctx context.Context, name string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stopped = append(r.Stopped, name)
	st, ok := r.Containers[name]
	if !ok {
		return errors.Wrap(container.ErrNotFound, name)
	}
	st.Running = false
	st.Status = "exited"
	r.Containers[name] = st
	return nil
}

func (r *Runtime) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Removed = append(r.Removed, name)
	delete(r.Containers, name)
	return nil
}

// StoppedNames returns a copy of the stop log.
func (r *Runtime) StoppedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.Stopped...)
}
