package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/stretchr/testify/require"
)

func TestLoadOptional_MissingFileReturnsDefaultStack(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), DefaultConfigFilename))
	require.NoError(t, err)
	require.NoError(t, cfg.Plan().Validate())

	api, ok := cfg.Service(cfg.Roles.API)
	require.True(t, ok)
	require.Equal(t, engine.CheckHTTPStrict, api.Health.Type)
	require.Equal(t, 90, api.Health.Attempts)

	web, ok := cfg.Service(cfg.Roles.Web)
	require.True(t, ok)
	require.Equal(t, engine.CheckHTTPLenient, web.Health.Type)
	require.Equal(t, engine.OutputInherited, web.Output)
	require.Len(t, cfg.Plan().Infra(), 3)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
project: demo
toolchain:
  - name: go
    command: [go, version]
services:
  - name: web
    port: 8081
    command: [python3, -m, http.server, "8081"]
    health:
      type: http-lenient
      attempts: 5
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.Project)
	require.Len(t, cfg.Services, 1)
	require.Equal(t, "go", cfg.Toolchain[0].Name)
	// untouched sections keep their defaults
	require.Equal(t, ".migrations_applied", cfg.Migrate.Marker)
}

func TestLoadFromFile_RejectsDuplicatePorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - {name: a, port: 9000, command: [a]}
  - {name: b, port: 9000, command: [b]}
`), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadEnv_Defaults(t *testing.T) {
	for _, k := range []string{EnvAPIBaseURL, EnvRequestTimeout, EnvDelayBetweenTests, EnvTestEmail} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	env := LoadEnv()
	require.Equal(t, DefaultAPIBaseURL, env.APIBaseURL)
	require.False(t, env.APIBaseURLSet)
	require.Equal(t, 30*time.Second, env.RequestTimeout)
	require.Equal(t, 500*time.Millisecond, env.DelayBetweenTests)
	require.Equal(t, "admin@synqcore.com", env.TestEmail)
}

func TestLoadEnv_OverridesAndApply(t *testing.T) {
	t.Setenv(EnvAPIBaseURL, "http://127.0.0.1:7000")
	t.Setenv(EnvRequestTimeout, "5")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvTestPassword, "hunter2")

	env := LoadEnv()
	require.True(t, env.APIBaseURLSet)
	require.Equal(t, 5*time.Second, env.RequestTimeout)
	require.Equal(t, "debug", env.LogLevel)
	require.Equal(t, "5", env.Map()[EnvRequestTimeout])

	cfg := Default()
	cfg.ApplyEnv(env)
	api, _ := cfg.Service("api")
	require.Equal(t, "http://127.0.0.1:7000", api.BaseURL)
	require.Equal(t, "http://127.0.0.1:7000/health", api.HealthURL())
	require.Equal(t, "hunter2", api.Env[EnvTestPassword])
	require.Equal(t, "0.5", api.Env[EnvDelayBetweenTests])
	require.NotContains(t, api.Env, EnvLogLevel)

	web, _ := cfg.Service("web")
	require.NotContains(t, web.Env, EnvTestPassword)
}
