package state

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ExitInfo describes how a supervised process ended.
type ExitInfo struct {
	Service   string    `json:"service"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	ExitedAt  time.Time `json:"exited_at"`

	ExitCode *int   `json:"exit_code,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Error    string `json:"error,omitempty"`

	OutputTail []string `json:"output_tail,omitempty"`
}

// Summary is the one-line form used in crash diagnoses.
func (e ExitInfo) Summary() string {
	switch {
	case e.Signal != "":
		return "killed by " + e.Signal
	case e.ExitCode != nil:
		return fmt.Sprintf("exited with code %d", *e.ExitCode)
	case e.Error != "":
		return e.Error
	default:
		return "exited"
	}
}

// ExitInfoPath names the exit record for one launch of service.
func ExitInfoPath(repoRoot, service string, startedAt time.Time) string {
	return filepath.Join(LogsDir(repoRoot), fmt.Sprintf("%s-%s.exit.json", service, startedAt.Format("20060102-150405")))
}

// WriteExitInfo replaces the record at path through a rename, so a concurrent
// reader (the dashboard) never sees a partial file.
func WriteExitInfo(path string, info ExitInfo) error {
	if path == "" {
		return errors.New("missing exit info path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create exit info dir")
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode exit info for %s", info.Service)
	}
	tmp, err := os.CreateTemp(dir, ".exit-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create exit info temp file")
	}
	_, werr := tmp.Write(b)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(stderrors.Join(werr, cerr), "write exit info")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "move exit info into place")
}

func ReadExitInfo(path string) (*ExitInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read exit info")
	}
	info := &ExitInfo{}
	if err := json.Unmarshal(b, info); err != nil {
		return nil, errors.Wrapf(err, "decode exit info %s", filepath.Base(path))
	}
	return info, nil
}
