package engine

import "time"

type RuntimeKind string

const (
	RuntimeProcess   RuntimeKind = "process"
	RuntimeContainer RuntimeKind = "container"
)

type OutputMode string

const (
	// OutputPiped captures stdout/stderr line by line into the log sink.
	OutputPiped OutputMode = "piped"
	// OutputInherited leaves the child attached to the parent's terminal.
	OutputInherited OutputMode = "inherited"
)

type CheckKind string

const (
	CheckHTTPStrict  CheckKind = "http-strict"
	CheckHTTPLenient CheckKind = "http-lenient"
	CheckTCP         CheckKind = "tcp"
	CheckExec        CheckKind = "exec"
	CheckMarker      CheckKind = "marker"
)

// TimeoutPolicy decides what a workflow does when a service never becomes ready.
type TimeoutPolicy string

const (
	OnTimeoutWarn        TimeoutPolicy = "warn"
	OnTimeoutFatal       TimeoutPolicy = "fatal"
	OnTimeoutFatalIfDead TimeoutPolicy = "fatal-if-dead"
)

type ServiceSpec struct {
	Name    string            `json:"name" yaml:"name"`
	Port    int               `json:"port,omitempty" yaml:"port,omitempty"`
	BaseURL string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Runtime RuntimeKind       `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Command []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	Output      OutputMode `json:"output,omitempty" yaml:"output,omitempty"`
	ReadyMarker string     `json:"ready_marker,omitempty" yaml:"ready_marker,omitempty"`

	// Container and ComposeService are used when Runtime is RuntimeContainer.
	Container      string `json:"container,omitempty" yaml:"container,omitempty"`
	ComposeService string `json:"compose_service,omitempty" yaml:"compose_service,omitempty"`
	Recreate       bool   `json:"recreate,omitempty" yaml:"recreate,omitempty"`

	// Infra marks backing infrastructure (database, cache, admin UI).
	Infra bool `json:"infra,omitempty" yaml:"infra,omitempty"`

	Health    *HealthCheck  `json:"health,omitempty" yaml:"health,omitempty"`
	OnTimeout TimeoutPolicy `json:"on_timeout,omitempty" yaml:"on_timeout,omitempty"`
	OpenPath  string        `json:"open_path,omitempty" yaml:"open_path,omitempty"`
}

type HealthCheck struct {
	Type       CheckKind `json:"type" yaml:"type"`
	Path       string    `json:"path,omitempty" yaml:"path,omitempty"`
	URL        string    `json:"url,omitempty" yaml:"url,omitempty"`
	Address    string    `json:"address,omitempty" yaml:"address,omitempty"`
	Exec       []string  `json:"exec,omitempty" yaml:"exec,omitempty"`
	Expect     string    `json:"expect,omitempty" yaml:"expect,omitempty"`
	Attempts   int       `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	IntervalMs int64     `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	TimeoutMs  int64     `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

func (h *HealthCheck) Interval() time.Duration {
	if h == nil || h.IntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(h.IntervalMs) * time.Millisecond
}

func (h *HealthCheck) Timeout() time.Duration {
	if h == nil || h.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

func (s ServiceSpec) IsContainer() bool {
	return s.Runtime == RuntimeContainer
}

// HealthURL resolves the URL probed by HTTP checks.
func (s ServiceSpec) HealthURL() string {
	if s.Health == nil {
		return ""
	}
	if s.Health.URL != "" {
		return s.Health.URL
	}
	return joinURL(s.BaseURL, s.Health.Path)
}

func (s ServiceSpec) OpenURL() string {
	if s.BaseURL == "" {
		return ""
	}
	return joinURL(s.BaseURL, s.OpenPath)
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if path[0] != '/' {
		path = "/" + path
	}
	return base + path
}

type LaunchPlan struct {
	Services []ServiceSpec `json:"services"`
}
