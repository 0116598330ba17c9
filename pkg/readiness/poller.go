package readiness

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Clock is the time source for retry loops; tests inject one that does not sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds a wait: MaxAttempts probes, Interval apart. Fallback, when set,
// is probed in the same attempt whenever the primary check fails at transport level.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	Fallback    Check
}

type Outcome struct {
	Service  string        `json:"service"`
	Ready    bool          `json:"ready"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Last     Result        `json:"last"`
	// Err is set when the wait was cut short by cancellation.
	Err error `json:"-"`
}

type Progress struct {
	Service     string
	Attempt     int
	MaxAttempts int
	Elapsed     time.Duration
	Last        Result
}

type Poller struct {
	Clock    Clock
	Progress func(Progress)
}

func (p *Poller) clock() Clock {
	if p.Clock == nil {
		return RealClock
	}
	return p.Clock
}

// WaitReady probes check until it passes or the policy is exhausted.
func (p *Poller) WaitReady(ctx context.Context, service string, check Check, policy Policy) Outcome {
	clk := p.clock()
	start := clk.Now()
	out := Outcome{Service: service}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Interval <= 0 {
		policy.Interval = time.Second
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}
		res := check.Probe(ctx)
		if !res.Ready && res.Err != nil && policy.Fallback != nil {
			if fb := policy.Fallback.Probe(ctx); fb.Ready {
				res = fb
			}
		}
		out.Attempts = attempt
		out.Last = res
		out.Elapsed = clk.Now().Sub(start)

		if res.Ready {
			out.Ready = true
			log.Debug().Str("service", service).Int("attempt", attempt).Str("result", res.String()).Msg("service ready")
			return out
		}
		if p.Progress != nil {
			p.Progress(Progress{
				Service:     service,
				Attempt:     attempt,
				MaxAttempts: policy.MaxAttempts,
				Elapsed:     out.Elapsed,
				Last:        res,
			})
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := clk.Sleep(ctx, policy.Interval); err != nil {
			out.Err = err
			break
		}
	}
	out.Elapsed = clk.Now().Sub(start)
	return out
}

// Deps carries what BuildCheck needs beyond the descriptor.
type Deps struct {
	Host        string
	HTTPTimeout time.Duration
	Runtime     container.Runtime
	RepoRoot    string
	// Markers returns the channel closed once a service printed its ready marker.
	Markers func(service string) <-chan struct{}
}

// BuildCheck maps a descriptor to its check and policy. A nil check means the
// service has nothing to wait for.
func BuildCheck(svc engine.ServiceSpec, deps Deps) (Check, Policy, error) {
	host := deps.Host
	if host == "" {
		host = "127.0.0.1"
	}
	h := svc.Health
	policy := Policy{Interval: h.Interval(), MaxAttempts: 1}
	if h != nil && h.Attempts > 0 {
		policy.MaxAttempts = h.Attempts
	}
	httpTimeout := h.Timeout()
	if deps.HTTPTimeout > 0 && deps.HTTPTimeout < httpTimeout {
		httpTimeout = deps.HTTPTimeout
	}
	tcpAddr := ""
	if svc.Port > 0 {
		tcpAddr = net.JoinHostPort(host, strconv.Itoa(svc.Port))
	}
	if h != nil && h.Address != "" {
		tcpAddr = h.Address
	}

	if h == nil {
		switch {
		case svc.IsContainer() && deps.Runtime != nil:
			return ContainerRunning{Runtime: deps.Runtime, Container: svc.Container}, Policy{Interval: 2 * time.Second, MaxAttempts: 30}, nil
		case tcpAddr != "":
			return TCPReachable{Address: tcpAddr}, Policy{Interval: time.Second, MaxAttempts: 30}, nil
		default:
			return nil, Policy{}, nil
		}
	}

	switch h.Type {
	case engine.CheckHTTPStrict:
		url := svc.HealthURL()
		if url == "" {
			return nil, Policy{}, errors.Errorf("service %q: http check needs url or base_url", svc.Name)
		}
		return StrictHTTPStatus{URL: url, Timeout: httpTimeout}, policy, nil
	case engine.CheckHTTPLenient:
		url := svc.HealthURL()
		if url == "" {
			return nil, Policy{}, errors.Errorf("service %q: http check needs url or base_url", svc.Name)
		}
		if tcpAddr != "" {
			policy.Fallback = TCPReachable{Address: tcpAddr, Timeout: 3 * time.Second}
		}
		return LenientHTTPOrContent{URL: url, Timeout: httpTimeout}, policy, nil
	case engine.CheckTCP:
		if tcpAddr == "" {
			return nil, Policy{}, errors.Errorf("service %q: tcp check needs port or address", svc.Name)
		}
		return TCPReachable{Address: tcpAddr, Timeout: h.Timeout()}, policy, nil
	case engine.CheckExec:
		if len(h.Exec) == 0 {
			return nil, Policy{}, errors.Errorf("service %q: exec check needs a command", svc.Name)
		}
		var ex Execer = LocalExecer{Dir: deps.RepoRoot}
		if svc.IsContainer() {
			if deps.Runtime == nil {
				return nil, Policy{}, errors.Errorf("service %q: exec check needs a container runtime", svc.Name)
			}
			ex = ContainerExecer{Runtime: deps.Runtime, Container: svc.Container}
		}
		return ExecPing{Command: h.Exec, Expect: h.Expect, Execer: ex}, policy, nil
	case engine.CheckMarker:
		if svc.ReadyMarker == "" || deps.Markers == nil {
			return nil, Policy{}, errors.Errorf("service %q: marker check needs ready_marker", svc.Name)
		}
		return MarkerSeen{Marker: svc.ReadyMarker, Seen: deps.Markers(svc.Name)}, policy, nil
	default:
		return nil, Policy{}, errors.Errorf("service %q: unknown check type %q", svc.Name, h.Type)
	}
}

// WaitService builds the descriptor's check and waits on it. attempts overrides
// the descriptor's budget when positive; polling is once per interval (1s default).
func (p *Poller) WaitService(ctx context.Context, svc engine.ServiceSpec, deps Deps, attempts int) (Outcome, error) {
	check, policy, err := BuildCheck(svc, deps)
	if err != nil {
		return Outcome{Service: svc.Name}, err
	}
	if check == nil {
		return Outcome{Service: svc.Name, Ready: true}, nil
	}
	if attempts > 0 {
		policy.MaxAttempts = attempts
	}
	log.Info().Str("service", svc.Name).Str("check", check.String()).Int("attempts", policy.MaxAttempts).Msg("waiting for service")
	return p.WaitReady(ctx, svc.Name, check, policy), nil
}
