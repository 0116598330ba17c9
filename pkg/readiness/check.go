// Package readiness gates workflow progression on per-service health checks.
package readiness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/pkg/errors"
)

// Result is the outcome of a single probe. Err is set only for transport-level
// failures (refused, timeout), which is what triggers a policy fallback.
type Result struct {
	Ready  bool   `json:"ready"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

func (r Result) String() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Status != 0 && r.Detail != "":
		return fmt.Sprintf("HTTP %d %s", r.Status, r.Detail)
	case r.Status != 0:
		return fmt.Sprintf("HTTP %d", r.Status)
	default:
		return r.Detail
	}
}

type Check interface {
	Probe(ctx context.Context) Result
	String() string
}

// StrictHTTPStatus is ready only when GET returns exactly Want.
type StrictHTTPStatus struct {
	URL     string
	Want    int
	Timeout time.Duration
	Client  *http.Client
}

func (c StrictHTTPStatus) String() string { return "GET " + c.URL }

func (c StrictHTTPStatus) Probe(ctx context.Context) Result {
	want := c.Want
	if want == 0 {
		want = http.StatusOK
	}
	resp, err := get(ctx, httpClient(c.Client, c.Timeout, true), c.URL)
	if err != nil {
		return Result{Err: err}
	}
	defer drain(resp)
	return Result{Ready: resp.StatusCode == want, Status: resp.StatusCode}
}

// LenientStatuses are the codes a front end may return while still booting.
var LenientStatuses = []int{http.StatusOK, http.StatusFound, http.StatusNotFound}

const sniffBytes = 100

// LenientHTTPOrContent is ready on a lenient status, an HTML content type, or a
// doctype marker in the first bytes of the body. Redirects are not followed.
type LenientHTTPOrContent struct {
	URL     string
	Accept  []int
	Timeout time.Duration
	Client  *http.Client
}

func (c LenientHTTPOrContent) String() string { return "GET " + c.URL + " (lenient)" }

func (c LenientHTTPOrContent) Probe(ctx context.Context) Result {
	resp, err := get(ctx, httpClient(c.Client, c.Timeout, false), c.URL)
	if err != nil {
		return Result{Err: err}
	}
	defer drain(resp)

	accept := c.Accept
	if accept == nil {
		accept = LenientStatuses
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return Result{Ready: true, Status: resp.StatusCode}
		}
	}
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		return Result{Ready: true, Status: resp.StatusCode, Detail: "html content"}
	}
	head, _ := io.ReadAll(io.LimitReader(resp.Body, sniffBytes))
	if bytes.Contains(bytes.ToLower(head), []byte("<!doctype html")) {
		return Result{Ready: true, Status: resp.StatusCode, Detail: "doctype marker"}
	}
	return Result{Status: resp.StatusCode}
}

// TCPReachable is ready when Address accepts a connection.
type TCPReachable struct {
	Address string
	Timeout time.Duration
}

func (c TCPReachable) String() string { return "tcp " + c.Address }

func (c TCPReachable) Probe(ctx context.Context) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return Result{Err: err}
	}
	_ = conn.Close()
	return Result{Ready: true, Detail: "port responding"}
}

// Execer runs a ping command and reports its exit code and output.
type Execer interface {
	Exec(ctx context.Context, cmd []string) (container.ExecResult, error)
}

// ExecPing needs a zero exit and, when Expect is set, Expect in the output.
type ExecPing struct {
	Command []string
	Expect  string
	Execer  Execer
}

func (c ExecPing) String() string { return "exec " + strings.Join(c.Command, " ") }

func (c ExecPing) Probe(ctx context.Context) Result {
	res, err := c.Execer.Exec(ctx, c.Command)
	if err != nil {
		return Result{Err: err}
	}
	out := strings.TrimSpace(res.Output)
	if res.ExitCode != 0 {
		return Result{Detail: fmt.Sprintf("exit %d: %s", res.ExitCode, out)}
	}
	if c.Expect != "" && !strings.Contains(out, c.Expect) {
		return Result{Detail: fmt.Sprintf("missing %q in %q", c.Expect, out)}
	}
	return Result{Ready: true, Detail: out}
}

// LocalExecer runs commands on the host.
type LocalExecer struct {
	Dir string
}

func (e LocalExecer) Exec(ctx context.Context, argv []string) (container.ExecResult, error) {
	if len(argv) == 0 {
		return container.ExecResult{}, errors.New("empty command")
	}
	// #nosec G204 -- commands come from the project config.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return container.ExecResult{ExitCode: ee.ExitCode(), Output: string(out)}, nil
		}
		return container.ExecResult{}, errors.Wrap(err, "run ping")
	}
	return container.ExecResult{Output: string(out)}, nil
}

// ContainerExecer runs commands inside a named container.
type ContainerExecer struct {
	Runtime   container.Runtime
	Container string
}

func (e ContainerExecer) Exec(ctx context.Context, argv []string) (container.ExecResult, error) {
	return e.Runtime.Exec(ctx, e.Container, argv)
}

// ContainerRunning is ready once the runtime reports the container running.
type ContainerRunning struct {
	Runtime   container.Runtime
	Container string
}

func (c ContainerRunning) String() string { return "container " + c.Container }

func (c ContainerRunning) Probe(ctx context.Context) Result {
	st, err := c.Runtime.Inspect(ctx, c.Container)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Ready: st.Running, Detail: st.Summary()}
}

// MarkerSeen is ready once Seen is closed, i.e. the service printed its ready line.
type MarkerSeen struct {
	Marker string
	Seen   <-chan struct{}
}

func (c MarkerSeen) String() string { return fmt.Sprintf("output marker %q", c.Marker) }

func (c MarkerSeen) Probe(ctx context.Context) Result {
	select {
	case <-c.Seen:
		return Result{Ready: true, Detail: "marker seen"}
	default:
		return Result{Detail: "marker not seen yet"}
	}
}

func httpClient(c *http.Client, timeout time.Duration, follow bool) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	if !follow {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return hc
}

func get(ctx context.Context, c *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "GET "+url)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
