package container

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
	envs  [][]string
	fail  map[string]bool
}

func (r *recorder) run(ctx context.Context, dir string, env, argv []string) ([]byte, error) {
	r.envs = append(r.envs, env)
	line := strings.Join(argv, " ")
	r.calls = append(r.calls, line)
	if r.fail[line] {
		return []byte("boom\nno such service\n"), errors.New("exit status 1")
	}
	return []byte("ok\n"), nil
}

func TestCompose_VersionFallsBack(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"docker compose version": true}}
	c := &Compose{Command: []string{"docker", "compose"}, Fallback: []string{"docker-compose"}, File: "dc.yml", Run: rec.run}

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	require.NoError(t, c.Up(context.Background(), nil, "postgres", "redis"))
	require.Equal(t, []string{
		"docker compose version",
		"docker-compose --version",
		"docker-compose -f dc.yml up -d postgres redis",
	}, rec.calls)
}

func TestCompose_UpCarriesEnvOverlay(t *testing.T) {
	t.Setenv("COMPOSE_PROJECT_NAME", "synqcore")
	rec := &recorder{}
	c := &Compose{Command: []string{"docker", "compose"}, Run: rec.run}

	require.NoError(t, c.Up(context.Background(), map[string]string{"TEST_EMAIL": "dev@example.com"}, "api"))
	require.NoError(t, c.Down(context.Background()))
	require.Len(t, rec.envs, 2)
	require.Contains(t, rec.envs[0], "TEST_EMAIL=dev@example.com")
	require.Contains(t, rec.envs[0], "COMPOSE_PROJECT_NAME=synqcore")
	require.Nil(t, rec.envs[1])
}

func TestOverlayEnv(t *testing.T) {
	got := OverlayEnv([]string{"A=1", "B=2", "PATH=/bin"}, map[string]string{"B": "x", "C": "3"})
	require.Equal(t, []string{"A=1", "PATH=/bin", "B=x", "C=3"}, got)
	require.Equal(t, []string{"A=1"}, OverlayEnv([]string{"A=1"}, nil))
}

func TestCompose_ErrorCarriesLastOutputLine(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"docker compose down": true}}
	c := &Compose{Command: []string{"docker", "compose"}, Run: rec.run}

	err := c.Down(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such service")
}

func TestState_Level(t *testing.T) {
	require.Equal(t, "down", State{Running: false}.Level())
	require.Equal(t, "warn", State{Running: true, Health: "starting"}.Level())
	require.Equal(t, "ok", State{Running: true, Health: "healthy"}.Level())
	require.Equal(t, "running (healthy)", State{Status: "running", Health: "healthy"}.Summary())
}
