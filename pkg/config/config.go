package config

import (
	"os"
	"path/filepath"

	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFilename = ".stackup.yaml"

type File struct {
	Project     string               `yaml:"project"`
	Toolchain   []Tool               `yaml:"toolchain"`
	Compose     Compose              `yaml:"compose"`
	Roles       Roles                `yaml:"roles"`
	Services    []engine.ServiceSpec `yaml:"services"`
	Build       Build                `yaml:"build"`
	Migrate     Migrate              `yaml:"migrate"`
	Prepare     Prepare              `yaml:"prepare"`
	Diagnostics Diagnostics          `yaml:"diagnostics"`
}

// Tool is a mandatory prerequisite probed by running Command.
type Tool struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
}

type Compose struct {
	File     string   `yaml:"file"`
	Command  []string `yaml:"command"`
	Fallback []string `yaml:"fallback,omitempty"`
}

// Roles names the services the built-in workflows are composed of.
type Roles struct {
	API string `yaml:"api"`
	Web string `yaml:"web"`
}

type Step struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Cwd     string   `yaml:"cwd,omitempty"`
}

type Build struct {
	CleanCommand []string `yaml:"clean_command,omitempty"`
	Steps        []Step   `yaml:"steps"`
}

type Migrate struct {
	Mode        string   `yaml:"mode"` // "command" | "sql"
	Command     []string `yaml:"command,omitempty"`
	Cwd         string   `yaml:"cwd,omitempty"`
	Dir         string   `yaml:"dir"`
	Globs       []string `yaml:"globs,omitempty"`
	Marker      string   `yaml:"marker"`
	DatabaseURL string   `yaml:"database_url,omitempty"`
}

type Prepare struct {
	Markers      []string `yaml:"markers"`
	CleanDirs    []string `yaml:"clean_dirs"`
	CleanFiles   []string `yaml:"clean_files"`
	SkipDirs     []string `yaml:"skip_dirs,omitempty"`
	ReclaimPorts bool     `yaml:"reclaim_ports,omitempty"`
}

type Endpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Diagnostics struct {
	CriticalFiles []string   `yaml:"critical_files"`
	Endpoints     []Endpoint `yaml:"endpoints"`
	RedisAddr     string     `yaml:"redis_addr,omitempty"`
	PostgresDSN   string     `yaml:"postgres_dsn,omitempty"`
}

func DefaultPath(repoRoot string) string {
	return filepath.Join(repoRoot, DefaultConfigFilename)
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	if err := cfg.Plan().Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid services")
	}
	return cfg, nil
}

// LoadOptional returns the built-in stack when no config file exists.
func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}

func (f *File) Plan() engine.LaunchPlan {
	return engine.LaunchPlan{Services: append([]engine.ServiceSpec{}, f.Services...)}
}

func (f *File) Service(name string) (engine.ServiceSpec, bool) {
	return f.Plan().Find(name)
}

// ApplyEnv folds environment overrides into the service descriptors. The API
// base URL is replaced only when API_BASE_URL was set; the test-client knobs
// are added to the API overlay without replacing configured keys.
func (f *File) ApplyEnv(env Env) {
	if f.Roles.API == "" {
		return
	}
	for i := range f.Services {
		svc := &f.Services[i]
		if svc.Name != f.Roles.API {
			continue
		}
		if env.APIBaseURLSet {
			svc.BaseURL = env.APIBaseURL
		}
		if svc.Env == nil {
			svc.Env = map[string]string{}
		}
		for k, v := range env.Map() {
			if v == "" || k == EnvLogLevel || k == EnvLogFile {
				continue
			}
			if _, ok := svc.Env[k]; !ok {
				svc.Env[k] = v
			}
		}
	}
}
