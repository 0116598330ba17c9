// Package ports probes TCP ports and reclaims them from the processes holding them.
package ports

import (
	"context"
	"net"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-go-golems/stackup/pkg/proc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OwnerFinder lists the pids listening on a TCP port.
type OwnerFinder interface {
	Owners(ctx context.Context, port int) ([]int, error)
}

type Options struct {
	Host           string
	FreeTimeout    time.Duration
	RespondTimeout time.Duration
	ReclaimWait    time.Duration
	PollInterval   time.Duration
	Finder         OwnerFinder
	// Signal delivers sig to pid. Defaults to syscall.Kill.
	Signal func(pid int, sig syscall.Signal) error
}

type Prober struct {
	opts Options
}

func New(opts Options) *Prober {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.FreeTimeout <= 0 {
		opts.FreeTimeout = time.Second
	}
	if opts.RespondTimeout <= 0 {
		opts.RespondTimeout = 3 * time.Second
	}
	if opts.ReclaimWait <= 0 {
		opts.ReclaimWait = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Finder == nil {
		opts.Finder = DefaultFinder()
	}
	if opts.Signal == nil {
		opts.Signal = syscall.Kill
	}
	return &Prober{opts: opts}
}

// IsFree reports whether nothing accepts connections on port. Dial errors count as free.
func (p *Prober) IsFree(ctx context.Context, port int) bool {
	return !p.dial(ctx, port, p.opts.FreeTimeout)
}

// IsResponding reports whether port accepts a TCP connection within the longer timeout.
func (p *Prober) IsResponding(ctx context.Context, port int) bool {
	return p.dial(ctx, port, p.opts.RespondTimeout)
}

func (p *Prober) dial(ctx context.Context, port int, timeout time.Duration) bool {
	if port <= 0 {
		return false
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.opts.Host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Snapshot maps each port to whether it is currently occupied.
func (p *Prober) Snapshot(ctx context.Context, ports []int) map[int]bool {
	out := make(map[int]bool, len(ports))
	for _, port := range ports {
		out[port] = !p.IsFree(ctx, port)
	}
	return out
}

// Reclaim terminates whatever holds port and waits for it to free up.
// It returns the pids it targeted. A free port is a no-op.
func (p *Prober) Reclaim(ctx context.Context, port int) ([]int, error) {
	if p.IsFree(ctx, port) {
		return nil, nil
	}
	pids, err := p.opts.Finder.Owners(ctx, port)
	if err != nil {
		return nil, errors.Wrapf(err, "list owners of port %d", port)
	}
	if len(pids) == 0 {
		return nil, errors.Errorf("port %d is occupied but no owning process was found", port)
	}

	log.Warn().Int("port", port).Ints("pids", pids).Msg("reclaiming port")
	p.signalAll(pids, syscall.SIGTERM)
	if p.waitFree(ctx, port) {
		return pids, nil
	}

	log.Warn().Int("port", port).Ints("pids", pids).Msg("port still held, escalating to SIGKILL")
	p.signalAll(pids, syscall.SIGKILL)
	if p.waitFree(ctx, port) {
		return pids, nil
	}
	return pids, errors.Errorf("port %d still occupied after reclaim", port)
}

func (p *Prober) signalAll(pids []int, sig syscall.Signal) {
	for _, pid := range pids {
		if err := p.opts.Signal(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
			log.Debug().Err(err).Int("pid", pid).Str("signal", sig.String()).Msg("signal failed")
		}
	}
}

func (p *Prober) waitFree(ctx context.Context, port int) bool {
	deadline := time.Now().Add(p.opts.ReclaimWait)
	t := time.NewTicker(p.opts.PollInterval)
	defer t.Stop()
	for {
		if p.IsFree(ctx, port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

// DefaultFinder uses /proc on linux and lsof elsewhere.
func DefaultFinder() OwnerFinder {
	if runtime.GOOS == "linux" {
		return procFinder{fallback: lsofFinder{}}
	}
	return lsofFinder{}
}

type procFinder struct {
	fallback OwnerFinder
}

func (f procFinder) Owners(ctx context.Context, port int) ([]int, error) {
	pids, err := proc.ListeningPIDs(port)
	if err != nil && f.fallback != nil {
		return f.fallback.Owners(ctx, port)
	}
	return pids, err
}

type lsofFinder struct{}

func (lsofFinder) Owners(ctx context.Context, port int) ([]int, error) {
	// #nosec G204 -- port is an int.
	out, err := exec.CommandContext(ctx, "lsof", "-t", "-nP", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN").Output()
	if err != nil {
		var ee *exec.ExitError
		// lsof exits 1 when nothing matches
		if errors.As(err, &ee) && ee.ExitCode() == 1 {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lsof")
	}
	return parsePIDList(string(out)), nil
}

func parsePIDList(s string) []int {
	seen := map[int]struct{}{}
	var pids []int
	for _, field := range strings.Fields(s) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}
