package container

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RunFunc executes argv in dir and returns combined output. A nil env
// inherits the caller's environment.
type RunFunc func(ctx context.Context, dir string, env, argv []string) ([]byte, error)

// Compose drives the compose CLI for bringing services up and down.
type Compose struct {
	Dir      string
	File     string
	Command  []string
	Fallback []string
	Run      RunFunc

	resolved []string
}

func ExecRun(ctx context.Context, dir string, env, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- commands come from the project config.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	return cmd.CombinedOutput()
}

// Version resolves which compose command works and returns its version string.
func (c *Compose) Version(ctx context.Context) (string, error) {
	candidates := [][]string{c.Command}
	if len(c.Fallback) > 0 {
		candidates = append(candidates, c.Fallback)
	}
	var lastErr error
	for _, base := range candidates {
		if len(base) == 0 {
			continue
		}
		args := append(append([]string{}, base...), "version")
		if len(base) == 1 {
			args = append(append([]string{}, base...), "--version")
		}
		out, err := c.run(ctx, nil, args)
		if err != nil {
			lastErr = err
			continue
		}
		c.resolved = base
		return strings.TrimSpace(string(out)), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no compose command configured")
	}
	return "", errors.Wrap(lastErr, "compose not available")
}

// Up starts services detached. overlay is added to the compose process
// environment so the compose file can interpolate it.
func (c *Compose) Up(ctx context.Context, overlay map[string]string, services ...string) error {
	var env []string
	if len(overlay) > 0 {
		env = OverlayEnv(os.Environ(), overlay)
	}
	args := append([]string{"up", "-d"}, services...)
	_, err := c.exec(ctx, env, args...)
	return err
}

func (c *Compose) Down(ctx context.Context) error {
	_, err := c.exec(ctx, nil, "down")
	return err
}

func (c *Compose) exec(ctx context.Context, env []string, args ...string) ([]byte, error) {
	base := c.resolved
	if len(base) == 0 {
		base = c.Command
	}
	if len(base) == 0 {
		return nil, errors.New("no compose command configured")
	}
	argv := append([]string{}, base...)
	if c.File != "" {
		argv = append(argv, "-f", c.File)
	}
	argv = append(argv, args...)
	log.Debug().Strs("argv", argv).Msg("compose")
	out, err := c.run(ctx, env, argv)
	if err != nil {
		return out, errors.Wrapf(err, "%s: %s", strings.Join(argv, " "), lastLine(out))
	}
	return out, nil
}

func (c *Compose) run(ctx context.Context, env, argv []string) ([]byte, error) {
	run := c.Run
	if run == nil {
		run = ExecRun
	}
	return run(ctx, c.Dir, env, argv)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
