package supervise

import (
	"context"
	"syscall"
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StopRecorded stops a process left behind by an earlier session. It is not our
// child, so liveness is polled instead of waited on.
func (s *Supervisor) StopRecorded(ctx context.Context, rec state.ServiceRecord) error {
	if rec.Container != "" {
		if s.opts.Runtime == nil {
			return errors.Errorf("service %q needs a container runtime", rec.Name)
		}
		err := s.opts.Runtime.Stop(ctx, rec.Container, s.opts.ShutdownTimeout)
		if errors.Is(err, container.ErrNotFound) {
			return nil
		}
		return err
	}
	if !state.ProcessAlive(rec.PID) {
		return nil
	}
	log.Info().Str("service", rec.Name).Int("pid", rec.PID).Msg("stopping process from previous session")
	return terminatePIDGroup(ctx, rec.PID, s.opts.ShutdownTimeout)
}

func terminatePIDGroup(ctx context.Context, pid int, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	signalGroup(pid, syscall.SIGTERM)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	deadline := time.Now().Add(timeout)
	for state.ProcessAlive(pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if !state.ProcessAlive(pid) {
		return nil
	}

	signalGroup(pid, syscall.SIGKILL)
	killDeadline := time.Now().Add(2 * time.Second)
	for state.ProcessAlive(pid) && time.Now().Before(killDeadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if state.ProcessAlive(pid) {
		return errors.Errorf("pid %d survived KILL", pid)
	}
	return nil
}
