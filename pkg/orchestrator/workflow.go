package orchestrator

import (
	"sort"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/go-go-golems/stackup/pkg/engine"
)

// ContainerMode says how a workflow depends on the container runtime.
type ContainerMode int

const (
	ContainersNone ContainerMode = iota
	// ContainersOptional skips the infra phases with a warning when the runtime is missing.
	ContainersOptional
	ContainersRequired
)

type PrepareMode int

const (
	PrepareNever PrepareMode = iota
	// PrepareFirstRun cleans and builds when the build markers are missing.
	PrepareFirstRun
)

// Workflow selects which phases run and for which services.
type Workflow struct {
	Name       string
	Containers ContainerMode
	Toolchain  bool
	Prepare    PrepareMode
	Infra      []string
	WaitInfra  bool
	Migrate    bool
	Apps       []string
	// AppTimeout overrides the services' own on_timeout policy when set.
	AppTimeout  engine.TimeoutPolicy
	KeepInfra   bool
	Monitor     bool
	OpenBrowser bool
}

// Workflows returns the long-running workflows for cfg, keyed by command name.
func Workflows(cfg *config.File) map[string]Workflow {
	var infra []string
	for _, svc := range cfg.Plan().Infra() {
		infra = append(infra, svc.Name)
	}
	apps := filterKnown(cfg, cfg.Roles.API, cfg.Roles.Web)
	api := filterKnown(cfg, cfg.Roles.API)
	web := filterKnown(cfg, cfg.Roles.Web)

	return map[string]Workflow{
		"start": {
			Name:        "start",
			Containers:  ContainersRequired,
			Toolchain:   true,
			Prepare:     PrepareFirstRun,
			Infra:       infra,
			WaitInfra:   true,
			Migrate:     true,
			Apps:        apps,
			KeepInfra:   true,
			Monitor:     true,
			OpenBrowser: true,
		},
		"api-only": {
			Name:        "api-only",
			Containers:  ContainersRequired,
			Toolchain:   true,
			Infra:       infra,
			WaitInfra:   true,
			Migrate:     true,
			Apps:        api,
			KeepInfra:   true,
			Monitor:     true,
			OpenBrowser: true,
		},
		"web-only": {
			Name:        "web-only",
			Containers:  ContainersNone,
			Toolchain:   true,
			Prepare:     PrepareFirstRun,
			Apps:        web,
			AppTimeout:  engine.OnTimeoutFatal,
			Monitor:     true,
			OpenBrowser: true,
		},
		"infra-up": {
			Name:       "infra-up",
			Containers: ContainersRequired,
			Infra:      infra,
			KeepInfra:  true,
		},
	}
}

// WorkflowNames lists the workflow commands in stable order.
func WorkflowNames(cfg *config.File) []string {
	var names []string
	for name := range Workflows(cfg) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func filterKnown(cfg *config.File, names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := cfg.Service(n); ok {
			out = append(out, n)
		}
	}
	return out
}
