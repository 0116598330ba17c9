// Package container talks to the container runtime backing the infrastructure services.
package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("container not found")

type State struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Status  string `json:"status"`
	Health  string `json:"health,omitempty"`
}

// Summary renders the status column of the infra table.
func (s State) Summary() string {
	if s.Health != "" {
		return fmt.Sprintf("%s (%s)", s.Status, s.Health)
	}
	return s.Status
}

// Level classifies a container for display: "ok", "warn" or "down".
func (s State) Level() string {
	switch {
	case !s.Running:
		return "down"
	case s.Health == "unhealthy" || s.Health == "starting":
		return "warn"
	default:
		return "ok"
	}
}

type Info struct {
	ServerVersion string
	OS            string
	Containers    int
	Running       int
	CPUs          int
	MemTotalMB    int64
}

type ExecResult struct {
	ExitCode int
	Output   string
}

type Runtime interface {
	Available(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
	Inspect(ctx context.Context, name string) (State, error)
	List(ctx context.Context, prefix string) ([]State, error)
	Exec(ctx context.Context, name string, cmd []string) (ExecResult, error)
	// Stop returns an error wrapping ErrNotFound when name does not exist.
	Stop(ctx context.Context, name string, timeout time.Duration) error
	Remove(ctx context.Context, name string) error
}

// IsRunning treats any inspect error as not running.
func IsRunning(ctx context.Context, rt Runtime, name string) bool {
	if rt == nil || name == "" {
		return false
	}
	st, err := rt.Inspect(ctx, name)
	return err == nil && st.Running
}

func normalizeName(name string) string {
	return strings.TrimPrefix(name, "/")
}
