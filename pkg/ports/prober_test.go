package ports

import (
	"context"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	helperPortEnv       = "STACKUP_TEST_LISTEN_PORT"
	helperIgnoreTermEnv = "STACKUP_TEST_IGNORE_TERM"
)

// TestHelperListener is not a real test: the reclaim tests re-exec the test binary
// into it so there is a separate process holding the port.
func TestHelperListener(t *testing.T) {
	portStr := os.Getenv(helperPortEnv)
	if portStr == "" {
		return
	}
	if os.Getenv(helperIgnoreTermEnv) == "1" {
		signal.Ignore(syscall.SIGTERM)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:"+portStr)
	if err != nil {
		os.Exit(3)
	}
	defer func() { _ = ln.Close() }()
	for {
		c, err := ln.Accept()
		if err != nil {
			os.Exit(0)
		}
		_ = c.Close()
	}
}

type staticFinder struct {
	mu    sync.Mutex
	pids  []int
	calls int
}

func (f *staticFinder) Owners(ctx context.Context, port int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pids, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startHolder(t *testing.T, port int, ignoreTerm bool) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperListener$")
	cmd.Env = append(os.Environ(), helperPortEnv+"="+strconv.Itoa(port))
	if ignoreTerm {
		cmd.Env = append(cmd.Env, helperIgnoreTermEnv+"=1")
	}
	require.NoError(t, cmd.Start())
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	p := New(Options{})
	deadline := time.Now().Add(10 * time.Second)
	for !p.IsResponding(context.Background(), port) {
		require.True(t, time.Now().Before(deadline), "helper never started listening")
		time.Sleep(50 * time.Millisecond)
	}
	return cmd
}

func TestProber_FreeAndResponding(t *testing.T) {
	ctx := context.Background()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	p := New(Options{})
	require.False(t, p.IsFree(ctx, port))
	require.True(t, p.IsResponding(ctx, port))
	require.Equal(t, map[int]bool{port: true}, p.Snapshot(ctx, []int{port}))

	require.NoError(t, ln.Close())
	require.True(t, p.IsFree(ctx, port))
	require.False(t, p.IsResponding(ctx, port))
}

func TestProber_InvalidPortFailsOpen(t *testing.T) {
	p := New(Options{})
	require.True(t, p.IsFree(context.Background(), 0))
	require.False(t, p.IsResponding(context.Background(), -1))
}

func TestReclaim_NoopWhenFree(t *testing.T) {
	f := &staticFinder{pids: []int{1}}
	p := New(Options{Finder: f})

	pids, err := p.Reclaim(context.Background(), freePort(t))
	require.NoError(t, err)
	require.Nil(t, pids)
	require.Equal(t, 0, f.calls)
}

func TestReclaim_SignalsOwnersUntilFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	var sent []syscall.Signal
	p := New(Options{
		Finder:      &staticFinder{pids: []int{4242}},
		ReclaimWait: time.Second,
		Signal: func(pid int, sig syscall.Signal) error {
			require.Equal(t, 4242, pid)
			sent = append(sent, sig)
			return ln.Close()
		},
	})

	pids, err := p.Reclaim(context.Background(), port)
	require.NoError(t, err)
	require.Equal(t, []int{4242}, pids)
	require.Equal(t, []syscall.Signal{syscall.SIGTERM}, sent)
	require.True(t, p.IsFree(context.Background(), port))
}

func TestReclaim_NoOwnerFoundIsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	p := New(Options{Finder: &staticFinder{}})
	_, err = p.Reclaim(context.Background(), ln.Addr().(*net.TCPAddr).Port)
	require.Error(t, err)
}

func TestReclaim_ConvergesOnRealProcess(t *testing.T) {
	port := freePort(t)
	holder := startHolder(t, port, false)

	p := New(Options{Finder: &staticFinder{pids: []int{holder.Process.Pid}}})
	pids, err := p.Reclaim(context.Background(), port)
	require.NoError(t, err)
	require.Equal(t, []int{holder.Process.Pid}, pids)
	require.True(t, p.IsFree(context.Background(), port))

	// second call is a no-op
	pids, err = p.Reclaim(context.Background(), port)
	require.NoError(t, err)
	require.Empty(t, pids)
}

func TestReclaim_EscalatesWhenTermIgnored(t *testing.T) {
	port := freePort(t)
	holder := startHolder(t, port, true)

	p := New(Options{
		Finder:      &staticFinder{pids: []int{holder.Process.Pid}},
		ReclaimWait: 500 * time.Millisecond,
	})
	pids, err := p.Reclaim(context.Background(), port)
	require.NoError(t, err)
	require.Equal(t, []int{holder.Process.Pid}, pids)
	require.True(t, p.IsFree(context.Background(), port))
}

func TestParsePIDList(t *testing.T) {
	require.Equal(t, []int{12, 345}, parsePIDList("345\n12\n345\nnope\n"))
	require.Empty(t, parsePIDList(""))
}
