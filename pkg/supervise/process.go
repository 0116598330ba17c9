package supervise

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/go-go-golems/stackup/pkg/state"
	"golang.org/x/sys/unix"
)

const tailSize = 20

// Process is one launched service: a child process group or a container.
type Process struct {
	Spec      engine.ServiceSpec
	PID       int
	Container string
	Cwd       string
	LogPath   string
	ExitPath  string
	StartedAt time.Time
	// Preexisting is set for containers that were already running before launch.
	Preexisting bool

	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	exit *state.ExitInfo
	tail []string

	marker     chan struct{}
	markerOnce sync.Once
}

func newProcess(spec engine.ServiceSpec) *Process {
	return &Process{
		Spec:   spec,
		done:   make(chan struct{}),
		marker: make(chan struct{}),
	}
}

func (p *Process) IsContainer() bool { return p.Container != "" }

// Done is closed when the child process has been reaped. Never closed for containers.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exited() bool {
	if p.IsContainer() {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Exit returns how the process ended, or nil while it runs.
func (p *Process) Exit() *state.ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Tail returns the last captured output lines (piped mode only).
func (p *Process) Tail() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.tail...)
}

// MarkerSeen is closed once the ready marker appeared in the output.
func (p *Process) MarkerSeen() <-chan struct{} { return p.marker }

func (p *Process) observeLine(line string, matches bool) {
	p.mu.Lock()
	p.tail = append(p.tail, line)
	if len(p.tail) > tailSize {
		p.tail = p.tail[len(p.tail)-tailSize:]
	}
	p.mu.Unlock()
	if matches {
		p.markerOnce.Do(func() { close(p.marker) })
	}
}

func (p *Process) finish(waitErr error) {
	info := state.ExitInfo{
		Service:    p.Spec.Name,
		PID:        p.PID,
		StartedAt:  p.StartedAt,
		ExitedAt:   time.Now(),
		OutputTail: p.Tail(),
	}
	if ps := p.cmd.ProcessState; ps != nil {
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			info.Signal = unix.SignalName(ws.Signal())
		} else {
			code := ps.ExitCode()
			info.ExitCode = &code
		}
	}
	if waitErr != nil && info.ExitCode == nil && info.Signal == "" {
		info.Error = waitErr.Error()
	}
	p.mu.Lock()
	p.exit = &info
	p.mu.Unlock()
	if p.ExitPath != "" {
		_ = state.WriteExitInfo(p.ExitPath, info)
	}
	close(p.done)
}

// Record is the persisted form of p.
func (p *Process) Record() state.ServiceRecord {
	rec := state.ServiceRecord{
		Name:      p.Spec.Name,
		Runtime:   string(p.Spec.Runtime),
		Infra:     p.Spec.Infra,
		PID:       p.PID,
		Container: p.Container,
		Port:      p.Spec.Port,
		URL:       p.Spec.BaseURL,
		Command:   p.Spec.Command,
		Cwd:       p.Cwd,
		Env:       state.SanitizeEnv(p.Spec.Env),
		LogPath:   p.LogPath,
		ExitInfo:  p.ExitPath,
		StartedAt: p.StartedAt,
	}
	if rec.Runtime == "" {
		rec.Runtime = string(engine.RuntimeProcess)
	}
	if h := p.Spec.Health; h != nil {
		rec.HealthType = string(h.Type)
		rec.HealthURL = p.Spec.HealthURL()
	}
	return rec
}
