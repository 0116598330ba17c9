package container

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DockerRuntime implements Runtime on the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

func (d *DockerRuntime) Available(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return errors.Wrap(err, "docker daemon not reachable")
	}
	return nil
}

func (d *DockerRuntime) Info(ctx context.Context) (Info, error) {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return Info{}, errors.Wrap(err, "docker info")
	}
	return Info{
		ServerVersion: info.ServerVersion,
		OS:            info.OperatingSystem,
		Containers:    info.Containers,
		Running:       info.ContainersRunning,
		CPUs:          info.NCPU,
		MemTotalMB:    info.MemTotal / (1 << 20),
	}, nil
}

func (d *DockerRuntime) Inspect(ctx context.Context, name string) (State, error) {
	resp, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return State{Name: name, Status: "missing"}, errors.Wrap(ErrNotFound, name)
		}
		return State{}, errors.Wrapf(err, "inspect %s", name)
	}
	st := State{Name: normalizeName(resp.Name), Status: "unknown"}
	if resp.State != nil {
		st.Running = resp.State.Running
		st.Status = resp.State.Status
		if resp.State.Health != nil {
			st.Health = resp.State.Health.Status
		}
	}
	return st, nil
}

func (d *DockerRuntime) List(ctx context.Context, prefix string) ([]State, error) {
	opts := container.ListOptions{All: true}
	if prefix != "" {
		opts.Filters = filters.NewArgs(filters.Arg("name", prefix))
	}
	list, err := d.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list containers")
	}
	out := make([]State, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = normalizeName(c.Names[0])
		}
		st := State{
			Name:    name,
			Running: c.State == "running",
			Status:  c.Status,
		}
		switch {
		case strings.Contains(c.Status, "(healthy)"):
			st.Health = "healthy"
		case strings.Contains(c.Status, "(unhealthy)"):
			st.Health = "unhealthy"
		case strings.Contains(c.Status, "health: starting"):
			st.Health = "starting"
		}
		out = append(out, st)
	}
	return out, nil
}

// Exec runs cmd inside the container and returns its exit code and combined output.
func (d *DockerRuntime) Exec(ctx context.Context, name string, cmd []string) (ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, "exec create in %s", name)
	}
	att, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, "exec attach in %s", name)
	}
	defer att.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, att.Reader); err != nil {
		return ExecResult{}, errors.Wrap(err, "read exec output")
	}
	ins, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "exec inspect")
	}
	return ExecResult{ExitCode: ins.ExitCode, Output: stdout.String() + stderr.String()}, nil
}

// Stop asks the daemon to SIGTERM the container and SIGKILL it after timeout.
func (d *DockerRuntime) Stop(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		if client.IsErrNotFound(err) {
			return errors.Wrap(ErrNotFound, name)
		}
		return errors.Wrapf(err, "stop %s", name)
	}
	log.Info().Str("container", name).Msg("container stopped")
	return nil
}

func (d *DockerRuntime) Remove(ctx context.Context, name string) error {
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}
