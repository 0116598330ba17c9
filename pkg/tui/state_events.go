package tui

import (
	"time"

	"github.com/go-go-golems/stackup/pkg/proc"
	"github.com/go-go-golems/stackup/pkg/state"
)

type ServiceExitObserved struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid,omitempty"`
	Container string    `json:"container,omitempty"`
	When      time.Time `json:"when"`
	Reason    string    `json:"reason,omitempty"`
}

type PhaseChanged struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	When time.Time `json:"when"`
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

type HealthResult struct {
	Status   HealthStatus `json:"status"`
	Endpoint string       `json:"endpoint,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	Latency  int64        `json:"latency_ms,omitempty"`
}

// StateSnapshot is what the dashboard renders: the persisted session plus
// liveness, resource usage and a fresh health probe per service.
type StateSnapshot struct {
	RepoRoot string                   `json:"repo_root"`
	At       time.Time                `json:"at"`
	Exists   bool                     `json:"exists"`
	State    *state.State             `json:"state,omitempty"`
	Alive    map[string]bool          `json:"alive,omitempty"`
	Stats    map[int]*proc.Stats      `json:"stats,omitempty"`
	Health   map[string]*HealthResult `json:"health,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// Service looks up a record in the snapshot's state.
func (s StateSnapshot) Service(name string) *state.ServiceRecord {
	if s.State == nil {
		return nil
	}
	return s.State.Find(name)
}
