package prepare

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runner executes argv in dir and returns combined output.
type Runner func(ctx context.Context, dir string, argv []string) ([]byte, error)

func ExecRunner(ctx context.Context, dir string, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- commands come from the project config.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

type StepResult struct {
	Name     string
	Duration time.Duration
	Output   []string
	Err      error
}

// RunSteps runs build steps in order and stops at the first failure.
func (p *Preparer) RunSteps(ctx context.Context, steps []config.Step) []StepResult {
	var results []StepResult
	for _, step := range steps {
		start := time.Now()
		dir := p.opts.Root
		if step.Cwd != "" {
			dir = p.abs(step.Cwd)
		}
		log.Info().Str("step", step.Name).Strs("command", step.Command).Msg("running build step")
		out, err := p.opts.Run(ctx, dir, step.Command)
		res := StepResult{Name: step.Name, Duration: time.Since(start), Output: lastLines(out, 15)}
		if err != nil {
			res.Err = errors.Wrapf(err, "step %s", step.Name)
		}
		results = append(results, res)
		if err != nil {
			break
		}
	}
	return results
}

// FirstFailure returns the first failed step, or nil.
func FirstFailure(results []StepResult) *StepResult {
	for i := range results {
		if results[i].Err != nil {
			return &results[i]
		}
	}
	return nil
}

func lastLines(out []byte, n int) []string {
	text := strings.TrimRight(string(out), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
