package engine

import (
	"github.com/pkg/errors"
)

// Validate rejects plans where two services share a name or claim the same port.
func (p LaunchPlan) Validate() error {
	names := map[string]struct{}{}
	ports := map[int]string{}
	for _, svc := range p.Services {
		if svc.Name == "" {
			return errors.New("service with empty name")
		}
		if _, ok := names[svc.Name]; ok {
			return errors.Errorf("service name collision: %s", svc.Name)
		}
		names[svc.Name] = struct{}{}

		switch svc.Runtime {
		case RuntimeContainer:
			if svc.ComposeService == "" && svc.Container == "" {
				return errors.Errorf("container service %q needs compose_service or container", svc.Name)
			}
		case RuntimeProcess, "":
			if len(svc.Command) == 0 {
				return errors.Errorf("service %q missing command", svc.Name)
			}
		default:
			return errors.Errorf("service %q has unknown runtime %q", svc.Name, svc.Runtime)
		}

		if svc.Port <= 0 {
			continue
		}
		if other, ok := ports[svc.Port]; ok {
			return errors.Errorf("port %d claimed by both %s and %s", svc.Port, other, svc.Name)
		}
		ports[svc.Port] = svc.Name
	}
	return nil
}

func (p LaunchPlan) Find(name string) (ServiceSpec, bool) {
	for _, svc := range p.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceSpec{}, false
}

// Select returns the named services in the requested order.
func (p LaunchPlan) Select(names ...string) (LaunchPlan, error) {
	out := LaunchPlan{Services: make([]ServiceSpec, 0, len(names))}
	for _, name := range names {
		svc, ok := p.Find(name)
		if !ok {
			return LaunchPlan{}, errors.Errorf("unknown service %q", name)
		}
		out.Services = append(out.Services, svc)
	}
	return out, nil
}

func (p LaunchPlan) Ports() []int {
	var out []int
	for _, svc := range p.Services {
		if svc.Port > 0 {
			out = append(out, svc.Port)
		}
	}
	return out
}

func (p LaunchPlan) Infra() []ServiceSpec {
	var out []ServiceSpec
	for _, svc := range p.Services {
		if svc.Infra {
			out = append(out, svc)
		}
	}
	return out
}
