package orchestrator

import (
	"fmt"

	"github.com/go-go-golems/stackup/pkg/readiness"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
)

// ErrInterrupted is returned when the operator stopped the run. It is not a failure.
var ErrInterrupted = errors.New("interrupted")

var ErrMissingPrerequisite = errors.New("missing prerequisite")

type PrerequisiteError struct {
	What string
	Err  error
}

func (e *PrerequisiteError) Error() string {
	if e.Err == nil {
		return "missing prerequisite: " + e.What
	}
	return fmt.Sprintf("missing prerequisite: %s (%v)", e.What, e.Err)
}

func (e *PrerequisiteError) Is(target error) bool { return target == ErrMissingPrerequisite }

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// BuildError reports a failed build step.
type BuildError struct {
	Step   string
	Output []string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build step %s failed: %v", e.Step, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ReadinessError is a readiness timeout the workflow treats as fatal.
type ReadinessError struct {
	Outcome readiness.Outcome
	Exit    *state.ExitInfo
}

func (e *ReadinessError) Error() string {
	if e.Exit != nil {
		return fmt.Sprintf("%s exited before becoming ready: %s", e.Outcome.Service, e.Exit.Summary())
	}
	return fmt.Sprintf("%s did not become ready after %d attempts (last: %s)", e.Outcome.Service, e.Outcome.Attempts, e.Outcome.Last.String())
}
