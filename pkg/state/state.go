package state

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	StateDirName  = ".stackup"
	StateFilename = "state.json"
	LogsDirName   = "logs"
)

// State is the persisted view of the current session, rewritten on every phase
// change so other invocations (status, tui, --force) can see it.
type State struct {
	RepoRoot  string          `json:"repo_root"`
	Workflow  string          `json:"workflow"`
	Phase     string          `json:"phase"`
	PID       int             `json:"pid"`
	KeepInfra bool            `json:"keep_infra"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Services  []ServiceRecord `json:"services"`
}

type ServiceRecord struct {
	Name      string            `json:"name"`
	Runtime   string            `json:"runtime"`
	Infra     bool              `json:"infra,omitempty"`
	PID       int               `json:"pid,omitempty"`
	Container string            `json:"container,omitempty"`
	Port      int               `json:"port,omitempty"`
	URL       string            `json:"url,omitempty"`
	Command   []string          `json:"command,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	LogPath   string            `json:"log_path,omitempty"`
	ExitInfo  string            `json:"exit_info,omitempty"`
	StartedAt time.Time         `json:"started_at,omitempty"`

	HealthType string `json:"health_type,omitempty"`
	HealthURL  string `json:"health_url,omitempty"`
	Ready      bool   `json:"ready"`
	Attempts   int    `json:"attempts,omitempty"`
}

func StatePath(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName, StateFilename)
}

func LogsDir(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName, LogsDirName)
}

// Find returns the record for name, or nil.
func (s *State) Find(name string) *ServiceRecord {
	if s == nil {
		return nil
	}
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i]
		}
	}
	return nil
}

// Upsert replaces the record with the same name or appends it.
func (s *State) Upsert(rec ServiceRecord) {
	if existing := s.Find(rec.Name); existing != nil {
		*existing = rec
		return
	}
	s.Services = append(s.Services, rec)
}

// Drop removes the record for name.
func (s *State) Drop(name string) {
	out := s.Services[:0]
	for _, rec := range s.Services {
		if rec.Name != name {
			out = append(out, rec)
		}
	}
	s.Services = out
}

func Load(repoRoot string) (*State, error) {
	path := StatePath(repoRoot)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read state")
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "parse state json")
	}
	return &s, nil
}

// Save writes through a temp file so concurrent readers never see a torn file.
func Save(repoRoot string, s *State) error {
	if s == nil {
		return errors.New("nil state")
	}
	dir := filepath.Dir(StatePath(repoRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	s.UpdatedAt = time.Now()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	tmp, err := os.CreateTemp(dir, StateFilename+".*")
	if err != nil {
		return errors.Wrap(err, "create temp state")
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write state")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close state")
	}
	if err := os.Rename(tmp.Name(), StatePath(repoRoot)); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "rename state")
	}
	return nil
}

func Remove(repoRoot string) error {
	path := StatePath(repoRoot)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove state")
	}
	return nil
}

func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return stderrors.Is(err, syscall.EPERM)
}

func isZombie(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// pid (comm) state ...
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return false
	}
	fields := bytes.Fields(bytes.TrimSpace(b[i+1:]))
	if len(fields) < 1 || len(fields[0]) < 1 {
		return false
	}
	return fields[0][0] == 'Z'
}
