// Package prepare decides how much work a run needs (first run, migrations)
// and performs the filesystem side of it.
package prepare

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Root string

	// Markers are directories whose existence means the project was built before.
	Markers []string

	CleanDirs    []string
	CleanFiles   []string
	SkipDirs     []string
	CleanCommand []string

	MigrationDir   string
	MigrationGlobs []string
	MarkerFile     string

	Run Runner
}

type Preparer struct {
	opts      Options
	removeAll func(string) error
}

func New(opts Options) *Preparer {
	if opts.MarkerFile == "" {
		opts.MarkerFile = ".migrations_applied"
	}
	if len(opts.MigrationGlobs) == 0 {
		opts.MigrationGlobs = []string{"*"}
	}
	if opts.Run == nil {
		opts.Run = ExecRunner
	}
	return &Preparer{opts: opts, removeAll: os.RemoveAll}
}

func (p *Preparer) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.opts.Root, rel)
}

// MarkerPath is the migrations-applied marker file.
func (p *Preparer) MarkerPath() string {
	return filepath.Join(p.abs(p.opts.MigrationDir), p.opts.MarkerFile)
}

// IsFirstRun is true when none of the build marker directories exist.
func (p *Preparer) IsFirstRun() bool {
	for _, m := range p.opts.Markers {
		if fi, err := os.Stat(p.abs(m)); err == nil && fi.IsDir() {
			return false
		}
	}
	return true
}

// MigrationsNeeded is true when the marker is missing or older than any
// migration source. Errors count as needed.
func (p *Preparer) MigrationsNeeded() bool {
	marker, err := os.Stat(p.MarkerPath())
	if err != nil {
		log.Debug().Err(err).Msg("no migration marker")
		return true
	}
	applied := marker.ModTime()
	markerPath := p.MarkerPath()

	needed := false
	err = filepath.WalkDir(p.abs(p.opts.MigrationDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == markerPath || !p.matchesMigration(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(applied) {
			log.Debug().Str("file", path).Msg("migration source newer than marker")
			needed = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("scan migrations")
		return true
	}
	return needed
}

func (p *Preparer) matchesMigration(name string) bool {
	return matchAny(p.opts.MigrationGlobs, name)
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// MarkMigrationsApplied creates or touches the marker.
func (p *Preparer) MarkMigrationsApplied() error {
	path := p.MarkerPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir marker dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "create marker")
	}
	_ = f.Close()
	now := time.Now()
	return errors.Wrap(os.Chtimes(path, now, now), "touch marker")
}

type CleanFailure struct {
	Path string
	Err  error
}

type CleanReport struct {
	Removed    []string
	Failures   []CleanFailure
	CommandErr error
}

// Clean removes build artifacts and stale files. Every path is best-effort.
func (p *Preparer) Clean(ctx context.Context) CleanReport {
	var rep CleanReport
	if len(p.opts.CleanCommand) > 0 {
		if _, err := p.opts.Run(ctx, p.opts.Root, p.opts.CleanCommand); err != nil {
			log.Warn().Err(err).Strs("command", p.opts.CleanCommand).Msg("clean command failed")
			rep.CommandErr = err
		}
	}

	skip := map[string]bool{state.StateDirName: true}
	for _, d := range p.opts.SkipDirs {
		skip[d] = true
	}
	dirs := map[string]bool{}
	for _, d := range p.opts.CleanDirs {
		dirs[d] = true
	}

	_ = filepath.WalkDir(p.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			rep.Failures = append(rep.Failures, CleanFailure{Path: path, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == p.opts.Root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			switch {
			case skip[name]:
				return fs.SkipDir
			case dirs[name]:
				p.remove(&rep, path)
				return fs.SkipDir
			}
			return nil
		}
		if matchAny(p.opts.CleanFiles, name) {
			p.remove(&rep, path)
		}
		return nil
	})
	log.Info().Int("removed", len(rep.Removed)).Int("failed", len(rep.Failures)).Msg("clean finished")
	return rep
}

func (p *Preparer) remove(rep *CleanReport, path string) {
	if err := p.removeAll(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not remove")
		rep.Failures = append(rep.Failures, CleanFailure{Path: path, Err: err})
		return
	}
	rep.Removed = append(rep.Removed, path)
}
